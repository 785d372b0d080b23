package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/calvinmclean/endolight/eventlog"
	"github.com/calvinmclean/endolight/report"
)

func main() {
	var logFile, dbFile, session, output string
	flag.StringVar(&logFile, "log", "", "Session log file to read")
	flag.StringVar(&dbFile, "db", "", "Event database to read instead of a log file")
	flag.StringVar(&session, "session", "", "Session to read from the event database")
	flag.StringVar(&output, "out", "", "HTML file to write. Default is the input name with .html")
	flag.Parse()

	var (
		events []eventlog.Event
		err    error
	)
	switch {
	case logFile != "":
		session = strings.TrimSuffix(filepath.Base(logFile), filepath.Ext(logFile))
		events, err = readLog(logFile)
		if output == "" {
			output = strings.TrimSuffix(logFile, filepath.Ext(logFile)) + ".html"
		}
	case dbFile != "" && session != "":
		events, err = readStore(dbFile, session)
		if output == "" {
			output = filepath.Join(filepath.Dir(dbFile), session+".html")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("error reading events: %v", err)
	}

	r := report.Build(session, events)

	f, err := os.Create(output)
	if err != nil {
		log.Fatalf("error creating report: %v", err)
	}
	defer f.Close()

	err = r.Render(f)
	if err != nil {
		log.Fatalf("error rendering report: %v", err)
	}

	err = r.WriteSummary(os.Stdout)
	if err != nil {
		log.Fatalf("error writing summary: %v", err)
	}
	fmt.Printf("Report written to %s\n", output)
}

func readLog(path string) ([]eventlog.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []eventlog.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		e, err := eventlog.ParseLine(scanner.Text())
		if err != nil {
			log.Printf("skipping line: %v", err)
			continue
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

func readStore(path, session string) ([]eventlog.Event, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return eventlog.QueryEvents(context.Background(), db, session)
}
