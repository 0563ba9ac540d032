package reader

import (
	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/manifest"
)

// resolve runs the resolver fold over cfg's declared filters: build one
// Entry per filter config, then fold each factory's Detect left to right,
// each factory claiming the entries it recognizes.
func resolve(cfg manifest.StreamConfigRecord, factories []filter.DecoderFactory) ([]filter.Entry, error) {
	entries := make([]filter.Entry, len(cfg.Filters))
	for i, fc := range cfg.Filters {
		entries[i] = filter.Entry{Input: fc}
	}
	var err error
	for _, f := range factories {
		entries, err = f.Detect(cfg, entries)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}
