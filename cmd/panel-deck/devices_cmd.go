package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// runDevices manages the remembered-device list in the state db.
func runDevices(args []string) {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list", "ls":
		devicesList()
	case "forget", "rm":
		devicesForget(args)
	case "events":
		devicesEvents(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown devices command: %s\n", sub)
		fmt.Fprintln(os.Stderr, "Usage: panel-deck devices [list|forget <host>|events]")
		os.Exit(2)
	}
}

func devicesList() {
	db := openStateDB()
	if db == nil {
		os.Exit(1)
	}
	defer db.Close()

	devices, err := db.LoadDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No remembered devices.")
		return
	}

	for _, d := range devices {
		avg := ""
		if fps, ok, err := db.AverageFPS(d.Host, time.Now().Add(-24*time.Hour)); err == nil && ok {
			avg = fmt.Sprintf("  avg %.0f fps", fps)
		}
		fmt.Printf("%-24s %3d°  last seen %s%s\n", d.Host, d.Rotation, relativeTime(d.LastConnected), avg)
	}
}

func devicesForget(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: panel-deck devices forget <host>")
		os.Exit(2)
	}

	db := openStateDB()
	if db == nil {
		os.Exit(1)
	}
	defer db.Close()

	if err := db.DeleteDevice(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Forgot %s\n", args[0])
}

func devicesEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of events to show")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	db := openStateDB()
	if db == nil {
		os.Exit(1)
	}
	defer db.Close()

	events, err := db.RecentEvents(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Println("No session events.")
		return
	}

	for _, e := range events {
		line := fmt.Sprintf("%s  %-24s %s", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Host, e.Event)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Println(line)
	}
}

// relativeTime renders a timestamp the way the device list wants to read it.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
