// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"log"
	"os"
	"sync"

	"github.com/jcodagnone/geocluster/utils/textutils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progress reports chunked work with a bar on terminals and log lines
// elsewhere. It is safe for concurrent use, and a nil progress is silent.
type progress struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	desc  string
	total int64
	done  int64
}

func newProgress(enabled bool, total int, desc string) *progress {
	if !enabled {
		return nil
	}

	p := &progress{desc: desc, total: int64(total)}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	return p
}

func (p *progress) Add(n int) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += int64(n)

	if p.bar != nil {
		if err := p.bar.Add(n); err != nil {
			log.Printf("updating progress bar: %v", err)
		}

		return
	}

	log.Printf("%s - %s of %s", p.desc, textutils.FormatInt(p.done), textutils.FormatInt(p.total))
}

func (p *progress) Finish() {
	if p == nil || p.bar == nil {
		return
	}

	if err := p.bar.Finish(); err != nil {
		log.Printf("finishing progress bar: %v", err)
	}
}
