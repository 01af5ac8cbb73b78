package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelops/kestrel/internal/eventstore"
	"github.com/kestrelops/kestrel/internal/logging"
	"github.com/kestrelops/kestrel/internal/session"
	"github.com/kestrelops/kestrel/internal/trend"
)

// #region main
func main() {
	dbPath := flag.String("db", "", "path to kestrel.db")
	sessionID := flag.String("session", "", "show one session's events and lifecycle")
	last := flag.Int("last", 20, "show N most recent sessions")
	metric := flag.String("trend", "", "show trend series for a metric name")
	datasetID := flag.String("dataset", "", "dataset ID for --trend")
	windows := flag.Int("windows", 10, "trend windows to show")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/kestrel.db [--session id] [--last N] [--trend metric --dataset id] [--json]")
		os.Exit(2)
	}

	store, err := eventstore.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *metric != "":
		err = runTrendMode(store, *metric, *datasetID, *windows, *jsonOut)
	case *sessionID != "":
		err = runSessionMode(store, *sessionID, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region session-mode

type sessionDetail struct {
	SessionID string          `json:"session_id"`
	CreatedAt string          `json:"created_at"`
	State     session.State   `json:"state"`
	Escalated bool            `json:"escalated"`
	Feedback  bool            `json:"feedback_received"`
	Events    []session.Event `json:"events"`
}

func runSessionMode(store *eventstore.Store, id string, jsonOut bool) error {
	sess, events, err := store.GetSession(id)
	if err != nil {
		return err
	}

	lc := session.Fold(events)
	out := sessionDetail{
		SessionID: sess.ID,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		State:     lc.State,
		Escalated: lc.Escalated,
		Feedback:  lc.FeedbackReceived,
		Events:    events,
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Session:   %s\n", out.SessionID)
	fmt.Printf("Created:   %s\n", out.CreatedAt)
	fmt.Printf("State:     %s\n", out.State)
	fmt.Printf("Escalated: %v\n", out.Escalated)
	fmt.Printf("Feedback:  %v\n", out.Feedback)

	fmt.Printf("\nEvents:\n")
	for _, ev := range events {
		fmt.Printf("  %-28s  %s\n", ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), ev.Type)
	}

	decisions, err := logging.ListDecisions(store.DB(), id, 10)
	if err != nil {
		return err
	}
	if len(decisions) > 0 {
		fmt.Printf("\nDecisions:\n")
		for _, d := range decisions {
			fmt.Printf("  %-11s  conf=%.4f  thr=%.4f  %s\n", d.Decision, d.Confidence, d.Threshold, d.Reason)
		}
	}
	return nil
}

// #endregion session-mode

// #region list-mode

type listRow struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
	Escalated bool          `json:"escalated"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt string        `json:"created_at"`
}

func runListMode(store *eventstore.Store, last int, jsonOut bool) error {
	sessions, err := store.ListSessions(last)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	// Store returns DESC, reverse for chronological
	rows := make([]listRow, len(sessions))
	for i, sess := range sessions {
		_, events, err := store.GetSession(sess.ID)
		if err != nil {
			return err
		}
		lc := session.Fold(events)

		lr := listRow{
			SessionID: sess.ID,
			State:     lc.State,
			Escalated: lc.Escalated,
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		}
		decisions, err := logging.ListDecisions(store.DB(), sess.ID, 1)
		if err != nil {
			return err
		}
		if len(decisions) > 0 {
			lr.Decision = decisions[0].Decision
			lr.Reason = decisions[0].Reason
		}
		rows[len(sessions)-1-i] = lr
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-16s  %-11s  %-17s  %s\n",
		"Session", "State", "Decision", "Reason", "Time")
	fmt.Printf("%-12s+-%-16s+-%-11s+-%-17s+-%s\n",
		"------------", "----------------", "-----------", "-----------------", "--------------------")
	for _, r := range rows {
		decision := r.Decision
		if decision == "" {
			decision = "—"
		}
		reason := r.Reason
		if reason == "" {
			reason = "—"
		}
		fmt.Printf("%-12s  %-16s  %-11s  %-17s  %s\n",
			shortID(r.SessionID), r.State, decision, reason, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region trend-mode

func runTrendMode(store *eventstore.Store, metric, datasetID string, windows int, jsonOut bool) error {
	if datasetID == "" {
		return fmt.Errorf("--trend requires --dataset")
	}

	trendStore, err := trend.NewStore(store.DB())
	if err != nil {
		return err
	}
	records, err := trendStore.Trend(metric, datasetID, windows)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no trend records found")
		return nil
	}

	if jsonOut {
		return printJSON(records)
	}

	fmt.Printf("%-22s  %8s  %-20s  %s\n", "Window Start", "Value", "Evaluator", "System")
	fmt.Printf("%-22s+-%8s+-%-20s+-%s\n",
		"----------------------", "--------", "--------------------", "----------")
	for _, rec := range records {
		fmt.Printf("%-22s  %8.4f  %-20s  %s\n",
			rec.WindowStart.Format(time.RFC3339),
			rec.Value,
			rec.EvaluatorName+"@"+rec.EvaluatorVersion,
			rec.SystemVersion,
		)
	}
	return nil
}

// #endregion trend-mode

// #region output
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
