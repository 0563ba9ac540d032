package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qsfio/qsf"
	"github.com/qsfio/qsf/filter/aesgcm"
	"github.com/qsfio/qsf/frame"
	"github.com/qsfio/qsf/keystore"
	"github.com/qsfio/qsf/manifest"
)

func newReadCmd() *cobra.Command {
	var src, outDir, keyDir string
	var qrec, manifestOnly, streamOnly bool

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a QSF container",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(src)
			if err != nil {
				return fmt.Errorf("open %s: %w", src, err)
			}
			defer in.Close()

			switch {
			case qrec:
				return dumpRawRecords(in)
			case manifestOnly:
				return dumpManifest(in)
			default:
				return decodeStreams(in, outDir, keyDir)
			}
		},
	}
	cmd.Flags().StringVar(&src, "src", "", "input .qsf container path")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write decoded stream contents to")
	cmd.Flags().StringVar(&keyDir, "key-dir", "", "directory to resolve encrypt: keys from")
	cmd.Flags().BoolVar(&qrec, "qrec", false, "dump raw frame records")
	cmd.Flags().BoolVar(&manifestOnly, "manifest", false, "dump manifest records only")
	cmd.Flags().BoolVar(&streamOnly, "stream", false, "decode streams to --out (default mode)")
	cmd.MarkFlagRequired("src")
	return cmd
}

// dumpRawRecords renders every frame on the wire, including reserved and
// unrecognized type codes, bypassing the binder entirely — the reader
// package's event stream only ever surfaces begin/end pairs, so a true raw
// dump has to walk frames directly ("--qrec" mode).
func dumpRawRecords(r io.Reader) error {
	enc := json.NewEncoder(os.Stdout)
	for {
		f, err := frame.DecodeFrom(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		rec := map[string]interface{}{
			"type":     f.Type.String(),
			"streamId": f.StreamID,
			"length":   len(f.Payload),
		}
		if f.Type == frame.ManifestEntry {
			var body map[string]interface{}
			if json.Unmarshal(f.Payload, &body) == nil {
				rec["body"] = body
			}
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
}

// dumpManifest renders only the stream.config/stream.result records,
// skipping the decoded payload entirely ("--manifest" mode).
func dumpManifest(r io.Reader) error {
	rd := qsf.Read(context.Background(), r)
	enc := json.NewEncoder(os.Stdout)
	for evt := range rd.Events() {
		switch e := evt.(type) {
		case *qsf.StreamFileBegin:
			enc.Encode(map[string]interface{}{
				"type":      manifest.RecordStreamConfig,
				"streamId":  e.StreamID,
				"combineId": e.CombineID,
				"filters":   e.Filters,
			})
		case *qsf.StreamFileEnd:
			enc.Encode(e.StreamResultRecord)
		}
	}
	return rd.Err()
}

// decodeStreams decodes every stream to a file under outDir named by its
// numeric stream id ("--stream" mode, the default).
func decodeStreams(r io.Reader, outDir, keyDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	var ks *keystore.Store
	if keyDir != "" {
		var err error
		ks, err = keystore.Open(keyDir)
		if err != nil {
			return err
		}
	}

	opts := []qsf.ReadOption{}
	if ks != nil {
		opts = append(opts, qsf.WithDecoderFactory(aesgcm.NewFactory(ks)))
	}
	rd := qsf.Read(context.Background(), r, opts...)
	for evt := range rd.Events() {
		begin, ok := evt.(*qsf.StreamFileBegin)
		if !ok {
			continue
		}
		id, err := qsf.StreamIDOf(begin.StreamID)
		if err != nil {
			return err
		}
		out, err := os.Create(filepath.Join(outDir, fmt.Sprintf("%d.bin", id)))
		if err != nil {
			return err
		}
		chunks, err := begin.Decode()
		if err != nil {
			out.Close()
			return fmt.Errorf("stream %d: %w", id, err)
		}
		for c := range chunks {
			if c.Err != nil {
				out.Close()
				return fmt.Errorf("stream %d: %w", id, c.Err)
			}
			if _, err := out.Write(c.Data); err != nil {
				out.Close()
				return err
			}
		}
		out.Close()
	}
	return rd.Err()
}
