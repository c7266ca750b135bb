package main

import (
	"fmt"
	"os"
	"strconv"

	"ringobridge/internal/journal"
)

// cmdJournal reads the journal database directly; the daemon need not be
// running.
func cmdJournal(args []string) {
	n := 20
	var kind journal.Kind
	for _, a := range args {
		if v, err := strconv.Atoi(a); err == nil {
			n = v
			continue
		}
		k, err := parseKind(a)
		if err != nil {
			fatalf("%v\nUsage: ringoctl journal [n] [stroke|foreground|mode|dropped]", err)
		}
		kind = k
	}

	cfg := loadConfig()
	if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
		fmt.Printf("No journal at %s\n", cfg.Journal.Path)
		return
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fatalf("opening journal: %v", err)
	}
	defer store.Close()

	if sess, err := store.LastSession(); err == nil && sess != nil {
		state := "running"
		if sess.StoppedAt != nil {
			state = "stopped " + sess.StoppedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("Session %s  pid %d  %s  %s  started %s, %s\n\n",
			sess.ID, sess.PID, sess.Version, sess.Platform,
			sess.StartedAt.Format("2006-01-02 15:04:05"), state)
	}

	entries, err := store.Tail(n, kind)
	if err != nil {
		fatalf("reading journal: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No entries")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %-10s %-22s %s\n",
			e.RecordedAt.Format("2006-01-02 15:04:05.000"), e.Kind, e.Channel, string(e.Payload))
	}

	if total, err := store.Count(); err == nil {
		fmt.Printf("\n%d of %d entries\n", len(entries), total)
	}
}

func parseKind(s string) (journal.Kind, error) {
	switch k := journal.Kind(s); k {
	case journal.KindStroke, journal.KindForeground, journal.KindMode, journal.KindDropped:
		return k, nil
	}
	return "", fmt.Errorf("unknown entry kind %q", s)
}
