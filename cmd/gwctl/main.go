package main

/*
* CLI to control gwd, the MCU bridge gateway daemon.
 */

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	"github.com/urfave/cli"
)

func printFatal(msg string, args ...interface{}) {
	printErr(msg, args...)
	os.Exit(1)
}

func printErr(msg string, args ...interface{}) {
	os.Stderr.WriteString(fmt.Sprintf(msg, args...) + "\n")
}

var (
	socketPath  string
	alertLogDir string
)

// controlClient returns an http.Client that dials the daemon's Unix control
// socket instead of a TCP address; every request's URL host is ignored.
func controlClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}

func pingCommand(c *cli.Context) error {
	resp, err := controlClient().Get("http://gwd/ping")
	if err != nil {
		printFatal("contacting gwd at %s: %v", socketPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printFatal("gwd returned %s", resp.Status)
	}
	fmt.Println(bridge.Green("gwd is up"))
	return nil
}

func statusCommand(c *cli.Context) error {
	resp, err := controlClient().Get("http://gwd/metrics")
	if err != nil {
		printFatal("contacting gwd at %s: %v", socketPath, err)
	}
	defer resp.Body.Close()

	var snap bridge.MetricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		printFatal("decoding metrics response: %v", err)
	}

	syncLabel := bridge.Red("no")
	if snap.SerialSynced {
		syncLabel = bridge.Green("yes")
	}
	fmt.Printf("serial synced:       %s\n", syncLabel)
	fmt.Printf("mcu paused:          %v\n", snap.McuPaused)
	fmt.Printf("uptime:              %s\n", time.Duration(snap.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Printf("flow success/fail/timeout: %d/%d/%d\n", snap.FlowSuccess, snap.FlowFailure, snap.FlowTimeout)
	fmt.Printf("serial crc/decode errors:  %d/%d\n", snap.SerialCRCErrors, snap.SerialDecodeErrors)
	fmt.Printf("handshake attempts/failures: %d/%d (%s)\n", snap.HandshakeAttempts, snap.HandshakeFailures, snap.HandshakeLastOutcome)

	if snap.MQTTSpoolDegraded {
		fmt.Printf("mqtt spool:          %s (%s)\n", bridge.Yellow("degraded"), snap.MQTTSpoolDegradeReason)
	} else {
		fmt.Printf("mqtt spool:          %s\n", bridge.Green("healthy"))
	}
	fmt.Printf("mqtt spool/queue depth: %d/%d\n", snap.MQTTSpoolDepth, snap.MQTTQueueDepth)

	for name, stats := range snap.SupervisorTasks {
		label := bridge.Green("running")
		if stats.Fatal {
			label = bridge.Red("fatal")
		} else if stats.Restarts > 0 {
			label = bridge.Yellow(fmt.Sprintf("%d restarts", stats.Restarts))
		}
		fmt.Printf("task %-10s %s\n", name+":", label)
	}
	return nil
}

func processCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		printFatal("gwctl process <id> -- inspect a running or completed shell command by its id.")
	}
	resp, err := controlClient().Get("http://gwd/process/" + id)
	if err != nil {
		printFatal("contacting gwd at %s: %v", socketPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		printFatal("no such process id: %s", id)
	}
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
	return nil
}

func resetCommand(c *cli.Context) error {
	resp, err := controlClient().Post("http://gwd/reset", "", nil)
	if err != nil {
		printFatal("contacting gwd at %s: %v", socketPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printFatal("gwd returned %s", resp.Status)
	}
	fmt.Println(bridge.Cyan("reconnect requested"))
	return nil
}

func alertsCommand(c *cli.Context) error {
	reader, err := bridge.OpenAlertLogReader(alertLogDir)
	if err != nil {
		printFatal("opening alert log at %s: %v", alertLogDir, err)
	}
	defer reader.Close()

	follow := c.Bool("follow")
	for {
		line, err := reader.ReadLine(2 * time.Second)
		if err != nil {
			if !follow {
				return nil
			}
			continue
		}
		fmt.Print(bridge.Magenta(line))
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "gwctl"
	app.Usage = "inspect and control gwd, the MCU bridge gateway daemon"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "socket",
			Value:       "/tmp/gatewayd/control.sock",
			Usage:       "path to gwd's control socket",
			Destination: &socketPath,
		},
		cli.StringFlag{
			Name:        "alert-log-dir",
			Value:       "/tmp/gatewayd/alerts",
			Usage:       "directory holding gwd's alert log",
			Destination: &alertLogDir,
		},
	}
	app.Before = func(c *cli.Context) error {
		socketPath = expandHome(socketPath)
		alertLogDir = expandHome(alertLogDir)
		return nil
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:   "ping",
			Usage:  "Check that gwd is reachable on its control socket.",
			Action: pingCommand,
		},
		cli.Command{
			Name:   "status",
			Usage:  "Print the current metrics snapshot: serial sync, flow stats, spool health, supervised task state.",
			Action: statusCommand,
		},
		cli.Command{
			Name:   "process",
			Usage:  "gwctl process <id> -- inspect a host process spawned via sh/run.",
			Action: processCommand,
		},
		cli.Command{
			Name:   "reset",
			Usage:  "Request gwd tear down and re-handshake the serial connection.",
			Action: resetCommand,
		},
		cli.Command{
			Name:  "alerts",
			Usage: "Tail gwd's operator alert log (policy denials, handshake-fatal terminations, spool degradation).",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "follow, f", Usage: "keep tailing instead of exiting at end of log"},
			},
			Action: alertsCommand,
		},
	}
	app.Run(os.Args)
}

func expandHome(path string) string {
	if path == "~" || len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
