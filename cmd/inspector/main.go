package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pipelabs/pipegate/internal/model"
)

// Offline reader for the gateway's JSONL audit mirrors. Handy when a
// compliance question arrives and the API is not reachable, or when the
// trail needs eyeballing across restarts.
func main() {
	var (
		file    = flag.String("file", "", "audit JSONL file to inspect")
		client  = flag.String("client", "", "filter by target client id")
		outcome = flag.String("outcome", "", "filter by outcome (allowed|denied|error)")
		kind    = flag.String("kind", "", "filter by action kind")
		limit   = flag.Int("limit", 0, "print at most N records, 0 for all")
		summary = flag.Bool("summary", false, "print outcome and reason counts instead of records")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: inspector -file logs/audit-YYYY-MM-DD.jsonl [-client id] [-outcome denied] [-kind place_order] [-summary]")
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	records := make([]*model.AuditRecord, 0, 1024)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	malformed := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.AuditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			malformed++
			continue
		}
		if *client != "" && rec.TargetClientID != *client {
			continue
		}
		if *outcome != "" && rec.Outcome != *outcome {
			continue
		}
		if *kind != "" && string(rec.Kind) != *kind {
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}

	if *summary {
		printSummary(records, malformed)
		return
	}

	if *limit > 0 && len(records) > *limit {
		records = records[len(records)-*limit:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tREQUEST\tACTOR\tTARGET\tKIND\tOUTCOME\tREASON\tMS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			rec.CreatedAt.Format("15:04:05"),
			short(rec.RequestID),
			rec.ActorID,
			rec.TargetClientID,
			rec.Kind,
			rec.Outcome,
			rec.Reason,
			rec.LatencyMs,
		)
	}
	w.Flush()

	if malformed > 0 {
		fmt.Fprintf(os.Stderr, "skipped %d malformed lines\n", malformed)
	}
}

func printSummary(records []*model.AuditRecord, malformed int) {
	outcomes := make(map[string]int)
	reasons := make(map[string]int)
	kinds := make(map[string]int)
	ambiguous := 0
	for _, rec := range records {
		outcomes[rec.Outcome]++
		kinds[string(rec.Kind)]++
		if rec.Reason != "" {
			reasons[rec.Reason]++
		}
		if rec.Ambiguous {
			ambiguous++
		}
	}

	fmt.Printf("records: %d  malformed: %d  ambiguous: %d\n\n", len(records), malformed, ambiguous)
	printCounts("outcomes", outcomes)
	printCounts("kinds", kinds)
	printCounts("denial reasons", reasons)
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })

	fmt.Println(title + ":")
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, counts[k])
	}
	fmt.Println()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
