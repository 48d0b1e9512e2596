package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"

	"sensebridge/bridge"
	"sensebridge/recorder"
	"sensebridge/transport"
)

var (
	device     = flag.String("device", "/dev/hidraw0", "HID character device path")
	scanTime   = flag.Duration("scan-timeout", 60*time.Second, "Pairing scan timeout")
	verbose    = flag.Bool("verbose", false, "Enable verbose event logging")
	recordPath = flag.String("record", "", "Append every sensor event to this file as it arrives")
)

var eventRecorder *recorder.Recorder

func main() {
	flag.Parse()

	fmt.Println("sensebridge - USB HID sensor bridge host")
	fmt.Println("=========================================")

	if *recordPath != "" {
		f, err := os.OpenFile(*recordPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open record file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		eventRecorder = recorder.New(f)
	}

	fmt.Printf("Opening %s...\n", *device)
	hid, err := transport.OpenHIDRaw(*device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open device: %v\n", err)
		os.Exit(1)
	}

	sess, err := bridge.Open(hid, onEvent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Stop()

	fmt.Printf("Connected: mac=%s version=%s inquiry=%#02x\n", sess.MAC, sess.Version, sess.InquiryResult)

	fmt.Println("Enter commands (L list, P pair, U <mac>... delete, X stop, ? help):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		fields, err := shlex.Split(strings.TrimSpace(scanner.Text()))
		if err != nil || len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "L":
			runList(sess)
		case "P":
			runScan(sess, *scanTime)
		case "U":
			runDelete(sess, fields[1:])
		case "X":
			fmt.Println("Stopping.")
			sess.Stop()
			return
		case "K":
			runKey(sess)
		case "?", "HELP":
			printHelp()
		default:
			fmt.Printf("Unknown command: %s (type ? for help)\n", fields[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func onEvent(sess *bridge.Session, ev bridge.SensorEvent) {
	if *verbose {
		fmt.Printf("[event] mac=%s kind=%s state=%s battery=%d%% signal=%d ts=%s\n",
			ev.MAC, ev.Kind, ev.State, ev.BatteryPercent, ev.SignalStrength, ev.Timestamp.Format(time.RFC3339))
	}
	if eventRecorder != nil {
		if err := eventRecorder.Record(ev); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to record event: %v\n", err)
		}
	}
}

func runList(sess *bridge.Session) {
	macs, err := sess.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: list failed: %v\n", err)
		return
	}
	if len(macs) == 0 {
		fmt.Println("No paired sensors.")
		return
	}
	for _, mac := range macs {
		fmt.Println(mac)
	}
}

func runScan(sess *bridge.Session, timeout time.Duration) {
	fmt.Printf("Scanning for %s, press a sensor's pair button now...\n", timeout)
	result, err := sess.Scan(timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: scan failed: %v\n", err)
		return
	}
	if result == nil {
		fmt.Println("No sensor announced itself before the timeout.")
		return
	}
	fmt.Printf("Paired %s (type=%d version=%d)\n", result.MAC, result.Type, result.Version)
}

func runDelete(sess *bridge.Session, macs []string) {
	if len(macs) == 0 {
		fmt.Println("Usage: U <mac> [<mac> ...]")
		return
	}
	for _, mac := range macs {
		ok, err := sess.Delete(mac)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: delete %s failed: %v\n", mac, err)
			continue
		}
		if ok {
			fmt.Printf("Deleted %s\n", mac)
		} else {
			fmt.Printf("Dongle did not confirm deletion of %s\n", mac)
		}
	}
}

func runKey(sess *bridge.Session) {
	key, err := sess.Key()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: get_key failed: %v\n", err)
		return
	}
	fmt.Printf("%x\n", key)
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  L              - list paired sensors")
	fmt.Println("  P              - pair (scan for a new sensor)")
	fmt.Println("  U <mac> ...    - delete one or more paired sensors")
	fmt.Println("  K              - fetch the dongle's authentication key")
	fmt.Println("  X              - stop the session and exit")
	fmt.Println()
}
