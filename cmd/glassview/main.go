// glassview is a CLI tool for inspecting glass table files and databases.
//
// Usage:
//
//	glassview <table>                     # interactive mode
//	glassview -l [-n 20] [-s key] <table> # list mode
//	glassview -stats <table>              # print header statistics
//	glassview -check <table|dir>          # verify structure
//	glassview -terms [-p prefix] <dir>    # list the terms of a database
//
// Interactive mode:
//
//	j/↓    scroll down
//	k/↑    scroll up
//	g      jump to first
//	G      jump to last
//	/      seek to key
//	q/Esc  quit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dacapoday/glass/config"
	"github.com/dacapoday/glass/database"
	"github.com/dacapoday/glass/internal/logger"
	"github.com/dacapoday/glass/internal/metrics"
	"github.com/dacapoday/glass/table"
)

func main() {
	listFlag := flag.Bool("l", false, "list mode (non-interactive)")
	countFlag := flag.Int("n", 0, "number of items (0 = all)")
	seekFlag := flag.String("s", "", "start listing at the first key >= this one")
	statsFlag := flag.Bool("stats", false, "print table statistics")
	checkFlag := flag.Bool("check", false, "verify a table file or database directory")
	termsFlag := flag.Bool("terms", false, "list the terms of a database directory")
	prefixFlag := flag.String("p", "", "term prefix for -terms")
	configFlag := flag.String("config", "", "YAML config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: glassview [-l] [-n count] [-s key] [-stats] [-check] [-terms [-p prefix]] <path>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fatal(err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	opts, err := cfg.TableOptions()
	if err != nil {
		fatal(err)
	}
	opts.ReadOnly = true
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts.Metrics = metrics.New(reg)
		defer printMetrics(reg)
	}

	path := flag.Arg(0)
	switch {
	case *termsFlag:
		runTerms(path, opts, *prefixFlag, *countFlag)
	case *checkFlag:
		runCheck(path, opts)
	case *statsFlag:
		runStats(path, opts)
	case *listFlag:
		runList(path, opts, *seekFlag, *countFlag)
	default:
		runInteractive(path, opts)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func openTable(path string, opts table.Options) *table.Table {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := table.New(name, path, opts)
	if err := t.Open(); err != nil {
		fatal(err)
	}
	return t
}

func runList(path string, opts table.Options, seek string, count int) {
	t := openTable(path, opts)
	defer t.Close()

	c, err := t.Cursor()
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	if seek != "" {
		c.FindEntryGE([]byte(seek))
	} else {
		c.Next()
	}
	for n := 0; c.Valid(); n++ {
		if count > 0 && n >= count {
			break
		}
		fmt.Printf("%s: %s\n", display(c.Key(), 40), display(c.Value(), 60))
		c.Next()
	}
	if err := c.Err(); err != nil {
		fatal(err)
	}
}

func runStats(path string, opts table.Options) {
	t := openTable(path, opts)
	defer t.Close()

	s := t.Stats()
	fmt.Printf("revision:    %d\n", s.Revision)
	fmt.Printf("label:       %s\n", t.Label())
	fmt.Printf("entries:     %d\n", s.Entries)
	fmt.Printf("height:      %d\n", s.Height)
	fmt.Printf("block size:  %d\n", s.BlockSize)
	fmt.Printf("blocks:      %d (%d free)\n", s.BlockCount, s.FreeCount)
	fmt.Printf("compression: %s\n", t.Strategy())
	fmt.Printf("flags:       %s\n", t.Flags())
}

func runCheck(path string, opts table.Options) {
	ctx := context.Background()
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		db, err := database.Open(path, opts)
		if err != nil {
			fatal(err)
		}
		defer db.Close()
		if err := db.Check(ctx); err != nil {
			fatal(err)
		}
		fmt.Printf("ok: %d documents\n", db.DocCount())
		return
	}

	t := openTable(path, opts)
	defer t.Close()
	if err := t.Check(ctx); err != nil {
		fatal(err)
	}
	fmt.Printf("ok: %d entries\n", t.EntryCount())
}

func runTerms(dir string, opts table.Options, prefix string, count int) {
	db, err := database.Open(dir, opts)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	it, err := db.AllTermsBegin(prefix)
	if err != nil {
		fatal(err)
	}
	defer it.Close()
	for n := 0; !it.End(); n++ {
		if count > 0 && n >= count {
			break
		}
		term, _ := it.Term()
		freq, err := it.TermFreq()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s\t%d\n", display([]byte(term), 40), freq)
		if err := it.Next(); err != nil {
			fatal(err)
		}
	}
}

// printMetrics writes the non-zero samples gathered during the run to stderr.
func printMetrics(g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			}
			if v != 0 {
				fmt.Fprintf(os.Stderr, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), v)
			}
		}
	}
}

// display formats bytes for display, truncating if needed.
// Tries to show as string if printable, otherwise hex.
func display(b []byte, maxLen int) string {
	if len(b) == 0 {
		return "(empty)"
	}

	if utf8.Valid(b) && isPrintable(b) {
		runes := []rune(string(b))
		if len(runes) > maxLen-3 {
			return string(runes[:maxLen-3]) + "..."
		}
		return string(runes)
	}

	hex := fmt.Sprintf("%x", b)
	if len(hex) > maxLen-3 {
		return hex[:maxLen-3] + "..."
	}
	return hex
}

func isPrintable(b []byte) bool {
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
