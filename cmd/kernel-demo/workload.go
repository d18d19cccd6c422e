package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"rvkernel/pkg/hal"
	"rvkernel/pkg/process"
	"rvkernel/pkg/process/ipc"
)

const (
	pipeLines      = 32
	clients        = 3
	requestsPerCli = 5
	mailboxSize    = 4
	logFIFO        = "klog"
)

// results are written by the workload processes and read by init once they
// are all zombies.
type results struct {
	pipeLines   int
	requests    int
	payload     int
	logLines    []string
	heartbeats  int
	daemonReady bool
}

func runWorkload(cmd *cobra.Command, _ []string) error {
	m, logger, err := boot()
	if err != nil {
		return err
	}

	var timer *hal.Timer
	if useTimer {
		timer = hal.NewTimer(m.Hart(), m.Config().TimerInterval)
		timer.Start()
	}

	res := &results{}
	workers, daemon, err := spawnWorkload(m, res)
	if err != nil {
		if timer != nil {
			timer.Stop()
		}
		return err
	}

	exited := func() bool {
		for _, pid := range workers {
			p, err := m.Get(pid)
			if err != nil || p.State() != process.StateZombie {
				return false
			}
		}
		return true
	}
	ok := waitUntil(m, func() bool { return res.daemonReady }) && waitUntil(m, exited)
	if !ok {
		logger.Warn("workload did not finish within the tick budget", "ticks", m.Ticks())
	}

	for i := 1; i <= 2; i++ {
		if err := m.Signal(daemon, process.SignalUser1); err != nil {
			logger.Warn("heartbeat not delivered", "pid", daemon, "error", err)
			break
		}
		want := i
		waitUntil(m, func() bool { return res.heartbeats >= want })
	}
	if err := m.Signal(daemon, process.SignalTerminate); err != nil {
		logger.Warn("terminate not delivered", "pid", daemon, "error", err)
	}
	waitUntil(m, func() bool { return childrenDone(m) })

	if timer != nil {
		timer.Stop()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pipe:      %d lines\n", res.pipeLines)
	fmt.Fprintf(out, "mailbox:   %d requests, %d payload bytes\n", res.requests, res.payload)
	fmt.Fprintf(out, "klog:      %d lines\n", len(res.logLines))
	for _, line := range res.logLines {
		fmt.Fprintf(out, "  %s\n", line)
	}
	fmt.Fprintf(out, "daemon:    %d heartbeats\n", res.heartbeats)
	fmt.Fprintf(out, "ticks:     %d\n\n", m.Ticks())
	printTable(out, m.Snapshot())

	codes := reapZombies(m)
	logger.Info("children reaped", "count", len(codes))

	if showMetrics {
		fmt.Fprintln(out)
		return printMetrics(out, m)
	}
	return nil
}

// waitUntil blocks init until done reports true. With a wall-clock timer init
// sleeps a tick at a time; otherwise it steps the ticks itself.
func waitUntil(m *process.Manager, done func() bool) bool {
	if !useTimer {
		return stepUntil(m, done)
	}
	for i := 0; i < maxTicks; i++ {
		if done() {
			return true
		}
		m.SleepTicks(1)
	}
	return done()
}

// spawnWorkload creates every process of the demo. It returns the PIDs that
// exit on their own and the PID of the daemon that has to be signalled.
func spawnWorkload(m *process.Manager, res *results) ([]int, int, error) {
	pipe, err := ipc.NewPipe(m)
	if err != nil {
		return nil, 0, err
	}
	mailbox, err := ipc.NewMessageQueue(m, mailboxSize)
	if err != nil {
		return nil, 0, err
	}
	fifos := ipc.NewRegistry(m)
	klog, err := fifos.Create(logFIFO)
	if err != nil {
		return nil, 0, err
	}

	var pids []int
	create := func(name string, fn func(), opts ...process.CreateOption) error {
		p, err := m.Create(name, func(any) { fn() }, nil, opts...)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		pids = append(pids, p.PID())
		return nil
	}
	logLine := func(format string, args ...any) {
		f, err := fifos.Open(logFIFO)
		if err != nil {
			return
		}
		_, _ = f.Write([]byte(fmt.Sprintf(format, args...) + "\n"))
	}

	if err := create("producer", func() {
		for i := 0; i < pipeLines; i++ {
			if _, err := pipe.Write([]byte(fmt.Sprintf("line %02d\n", i))); err != nil {
				break
			}
			m.Yield()
		}
		_ = pipe.CloseWrite()
	}); err != nil {
		return nil, 0, err
	}

	if err := create("consumer", func() {
		buf := make([]byte, 64)
		for {
			n, err := pipe.Read(buf)
			res.pipeLines += bytes.Count(buf[:n], []byte{'\n'})
			if errors.Is(err, io.EOF) {
				break
			}
		}
		_ = pipe.CloseRead()
		logLine("consumer: %d lines from pipe", res.pipeLines)
	}); err != nil {
		return nil, 0, err
	}

	if err := create("server", func() {
		for open := clients; open > 0; {
			msg := mailbox.Receive()
			switch msg.Type {
			case ipc.MessageTypeDisconnect:
				open--
			case ipc.MessageTypeData:
				res.requests++
				res.payload += len(msg.Payload)
			}
		}
		logLine("server: %d requests", res.requests)
	}, process.WithPriority(5)); err != nil {
		return nil, 0, err
	}

	for c := 0; c < clients; c++ {
		id := c
		if err := create(fmt.Sprintf("client-%d", id), func() {
			for i := 0; i < requestsPerCli; i++ {
				mailbox.Send(ipc.Message{
					Type:    ipc.MessageTypeData,
					Payload: []byte(fmt.Sprintf("req %d.%d", id, i)),
				})
				m.SleepTicks(uint64(id + 1))
			}
			mailbox.Send(ipc.Message{Type: ipc.MessageTypeDisconnect})
		}); err != nil {
			return nil, 0, err
		}
	}

	if err := create("klogd", func() {
		var collected []byte
		buf := make([]byte, 128)
		for bytes.Count(collected, []byte{'\n'}) < 2 {
			n, err := klog.Read(buf)
			collected = append(collected, buf[:n]...)
			if err != nil {
				break
			}
		}
		for _, line := range bytes.Split(bytes.TrimSpace(collected), []byte{'\n'}) {
			res.logLines = append(res.logLines, string(line))
		}
	}); err != nil {
		return nil, 0, err
	}

	workers := pids
	pids = nil
	if err := create("daemon", func() {
		_, err := m.SetAction(process.SignalUser1, process.Catch(func(process.Signal) {
			res.heartbeats++
		}))
		if err != nil {
			fmt.Fprintln(os.Stderr, "daemon:", err)
			return
		}
		res.daemonReady = true
		for {
			m.Sleep("daemon")
		}
	}); err != nil {
		return nil, 0, err
	}
	return workers, pids[0], nil
}
