package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/eight-presence/db"
	"github.com/thatsimonsguy/eight-presence/internal/store"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, statePath, command, side string
	var limit, keep int
	flag.StringVar(&dbPath, "db", "data/eight.db", "Path to the SQLite database file")
	flag.StringVar(&statePath, "state", "data/presence.json", "Path to the presence state file")
	flag.StringVar(&command, "cmd", "", "Command to run: show-transitions, show-levels, show-state, prune")
	flag.StringVar(&side, "side", "", "Side (left or right)")
	flag.IntVar(&limit, "limit", 20, "Number of rows to show")
	flag.IntVar(&keep, "keep", 10000, "Snapshots to keep per side when pruning")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of eight-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/eight.db')")
		fmt.Println("  -state string\tPath to the presence state file (default 'data/presence.json')")
		fmt.Println("  -cmd string\tCommand to run: show-transitions, show-levels, show-state, prune")
		fmt.Println("  -side string\tSide for show-levels (required) or show-transitions (optional)")
		fmt.Println("  -limit int\tNumber of rows to show (default 20)")
		fmt.Println("  -keep int\tSnapshots to keep per side when pruning (default 10000)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "show-transitions":
		err = db.ShowTransitionsCLI(os.Stdout, dbPath, side, limit)
	case "show-levels":
		if side == "" {
			fmt.Println("Error: side is required")
			os.Exit(1)
		}
		err = db.ShowLevelsCLI(os.Stdout, dbPath, side, limit)
	case "show-state":
		var state *store.PresenceState
		state, err = store.New(statePath).Load()
		if err == nil {
			state.Print(os.Stdout)
		}
	case "prune":
		err = db.PruneSnapshotsCLI(os.Stdout, dbPath, keep)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
