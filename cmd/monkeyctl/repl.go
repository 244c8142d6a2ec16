package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/browser"
)

const replDefaultTimeout = 10 * time.Second

// runREPL reads one command per line from stdin and drives session until
// EOF, "quit", or a fatal session error. It is a thin manual-testing aid,
// not a scripting surface — plans belong in planrunner.
func runREPL(session *browser.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	windows := make(map[string]*browser.Window)

	for {
		fmt.Print("monkeyctl> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "new":
			url := ""
			if len(fields) > 1 {
				url = fields[1]
			}
			w, err := session.NewWindow(url, replDefaultTimeout)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			windows[w.WinID] = w
			fmt.Println("created", w.WinID)

		case "go":
			if len(fields) < 3 {
				fmt.Println("usage: go <tag> <url>")
				continue
			}
			w, ok := windows[fields[1]]
			if !ok {
				fmt.Println("unknown window", fields[1])
				continue
			}
			if err := w.LoadPage(fields[2], "", replDefaultTimeout); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("loaded")

		case "redraw":
			if len(fields) < 2 {
				fmt.Println("usage: redraw <tag>")
				continue
			}
			w, ok := windows[fields[1]]
			if !ok {
				fmt.Println("unknown window", fields[1])
				continue
			}
			records, err := w.Redraw(nil, replDefaultTimeout)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, r := range records {
				fmt.Printf("  %s %v\n", r.Tag, r.Args)
			}

		case "click":
			if len(fields) < 4 {
				fmt.Println("usage: click <tag> <x> <y>")
				continue
			}
			w, ok := windows[fields[1]]
			if !ok {
				fmt.Println("unknown window", fields[1])
				continue
			}
			x, _ := strconv.Atoi(fields[2])
			y, _ := strconv.Atoi(fields[3])
			if err := w.Click(x, y, "LEFT", "SINGLE"); err != nil {
				fmt.Println("error:", err)
			}

		case "kill":
			if len(fields) < 2 {
				fmt.Println("usage: kill <tag>")
				continue
			}
			w, ok := windows[fields[1]]
			if !ok {
				fmt.Println("unknown window", fields[1])
				continue
			}
			if err := w.Kill(); err != nil {
				fmt.Println("error:", err)
				continue
			}
			delete(windows, fields[1])

		case "quit":
			_, err := session.QuitAndWait(browser.DefaultQuitTimeout)
			return err

		default:
			fmt.Println("unknown command:", fields[0])
		}

		if session.Stopped() {
			fmt.Println("child exited")
			return nil
		}
	}
	_, err := session.QuitAndWait(browser.DefaultQuitTimeout)
	return err
}
