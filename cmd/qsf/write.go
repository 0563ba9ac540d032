package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/filter/aesgcm"
	"github.com/qsfio/qsf/filter/cidfilter"
	"github.com/qsfio/qsf/filter/zstr"
	"github.com/qsfio/qsf/keystore"
	"github.com/qsfio/qsf/writer"
)

func newWriteCmd() *cobra.Command {
	var out string
	var keyDir string

	cmd := &cobra.Command{
		Use:   "write [file:token,token,...]...",
		Short: "Write one or more files into a QSF container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyDir == "" {
				keyDir = "."
			}
			ks, err := keystore.Open(keyDir)
			if err != nil {
				return err
			}
			entries, closers, err := buildEntries(args, ks)
			for _, c := range closers {
				defer c.Close()
			}
			if err != nil {
				return err
			}
			dst, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer dst.Close()
			return writer.New(dst).Write(entries)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output .qsf container path")
	cmd.Flags().StringVar(&keyDir, "key-dir", "", "directory for encrypt: key files (default: current directory)")
	cmd.MarkFlagRequired("out")
	return cmd
}

// buildEntries parses "path:token,token,..." tokens (encoder tokens: cid,
// zstr[:deflate|deflate-raw|gzip], encrypt:<keyfile>) into writer.Entry
// values, opening each source file.
func buildEntries(args []string, ks *keystore.Store) ([]writer.Entry, []*os.File, error) {
	var entries []writer.Entry
	var files []*os.File
	for _, arg := range args {
		path, tokenStr, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, files, fmt.Errorf("malformed entry %q: expected path:token,token,...", arg)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, files, fmt.Errorf("open %s: %w", path, err)
		}
		files = append(files, f)

		var encoders []filter.EncoderFilter
		for _, tok := range strings.Split(tokenStr, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			enc, err := buildEncoder(tok, ks)
			if err != nil {
				return nil, files, err
			}
			encoders = append(encoders, enc)
		}
		entries = append(entries, writer.Entry{Source: f, Encoders: encoders})
	}
	return entries, files, nil
}

func buildEncoder(token string, ks *keystore.Store) (filter.EncoderFilter, error) {
	name, arg, hasArg := strings.Cut(token, ":")
	switch name {
	case "cid":
		return cidfilter.NewEncoder(""), nil
	case "zstr":
		codec := zstr.CodecDeflate
		if hasArg && arg != "" {
			codec = arg
		}
		return zstr.NewEncoder(codec)
	case "encrypt":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("encrypt token requires a key file: encrypt:<keyfile>")
		}
		key, err := ks.LoadOrGenerate(arg)
		if err != nil {
			return nil, err
		}
		return aesgcm.NewEncoder(key)
	default:
		return nil, fmt.Errorf("unknown encoder token %q", name)
	}
}
