// Command fterm supervises `flutter run --machine` for a project and
// streams interpreted tool, app, and VM service events to the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftermdev/fterm/internal/daemon"
	"github.com/ftermdev/fterm/internal/events"
	"github.com/ftermdev/fterm/internal/protocol"
	"github.com/ftermdev/fterm/internal/vmservice"
)

const (
	shutdownTimeout    = 10 * time.Second
	streamListenWindow = 5 * time.Second
	gcHistoryCapacity  = 32
)

var (
	flagProject string
	flagDevice  string
	flagTool    string
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fterm",
		Short:         "terminal companion for iterative Flutter development",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run [-- extra tool args]",
		Short: "run the app in machine mode and stream interpreted events",
		RunE:  runApp,
	}

	runCmd.Flags().StringVarP(&flagProject, "project", "p", ".", "project directory (must contain pubspec.yaml)")
	runCmd.Flags().StringVarP(&flagDevice, "device", "d", "", "target device id")
	runCmd.Flags().StringVar(&flagTool, "tool", "", "explicit flutter tool path")
	runCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fterm:", err)
		os.Exit(1)
	}
}

// session holds the per-run state the event loop threads through.
type session struct {
	log       *slog.Logger
	handle    *daemon.Handle
	service   *vmservice.Client
	gcHistory *events.GCHistory
	appID     string
}

func runApp(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := daemon.Spawn(ctx, log, daemon.Config{
		ToolPath:   flagTool,
		ProjectDir: flagProject,
		DeviceID:   flagDevice,
		ExtraArgs:  args,
	})
	if err != nil {
		return err
	}

	defer func() { _ = handle.Close() }()

	s := &session{
		log:       log,
		handle:    handle,
		gcHistory: events.NewGCHistory(gcHistoryCapacity),
	}

	var serviceEvents <-chan protocol.DomainEvent

	for {
		select {
		case ev, ok := <-handle.Events():
			if !ok {
				if s.service != nil {
					_ = s.service.Close()
				}

				return nil
			}

			s.handleDaemonEvent(ctx, ev)

			if s.service != nil && serviceEvents == nil {
				serviceEvents = s.service.Events()
			}

		case ev, ok := <-serviceEvents:
			if !ok {
				serviceEvents = nil
				s.service = nil

				continue
			}

			s.handleServiceEvent(ev)

		case <-ctx.Done():
			stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err := handle.Shutdown(shutdownCtx, s.appID)
			cancel()

			if s.service != nil {
				_ = s.service.Close()
			}

			return err
		}
	}
}

// handleDaemonEvent reacts to one supervisor event: lifecycle tracking,
// VM service attachment, and log rendering.
func (s *session) handleDaemonEvent(ctx context.Context, ev protocol.DomainEvent) {
	switch e := ev.(type) {
	case *protocol.ConnectedEvent:
		s.log.Info("Daemon connected", "version", e.Version)

	case *protocol.AppStartingEvent:
		s.appID = e.AppID
		s.log.Info("App starting", "app_id", e.AppID, "device", e.DeviceID)

	case *protocol.AppStartedEvent:
		s.log.Info("App started", "app_id", e.AppID)

	case *protocol.AppStoppedEvent:
		s.log.Info("App stopped", "app_id", e.AppID)

	case *protocol.AppDebugPortEvent:
		s.attachService(ctx, e.WSURI)

	case *protocol.AppProgressEvent:
		if !e.Finished && e.Message != "" {
			s.log.Info("Progress", "message", e.Message)
		}

	case *protocol.AppLogEvent:
		printEntry(events.InterpretAppLog(e))

	case *protocol.DaemonLogEvent:
		printEntry(events.InterpretDaemonLog(e))

	case *protocol.DeviceAddedEvent:
		s.log.Info("Device added", "id", e.Device.ID, "name", e.Device.Name)

	case *protocol.DeviceRemovedEvent:
		s.log.Info("Device removed", "id", e.Device.ID)

	case *protocol.StdoutLineEvent:
		printEntry(events.Entry{Severity: events.ClassifySeverity(e.Line, false), Message: events.CleanLine(e.Line)})

	case *protocol.StderrLineEvent:
		printEntry(events.Entry{Severity: events.ClassifySeverity(e.Line, false), Message: events.CleanLine(e.Line)})

	case *protocol.ExitedEvent:
		s.log.Info("Tool exited", "code", e.Code)

	case *protocol.UnknownEvent:
		s.log.Debug("Unknown daemon event", "name", e.Name)
	}
}

// handleServiceEvent reacts to one VM service event.
func (s *session) handleServiceEvent(ev protocol.DomainEvent) {
	switch e := ev.(type) {
	case *protocol.ServiceConnectedEvent:
		s.log.Info("VM service connected", "uri", e.URI)

	case *protocol.ServiceDisconnectedEvent:
		s.log.Warn("VM service disconnected", "error", e.Err)

	case *protocol.ServiceLogEvent:
		printEntry(events.InterpretServiceLog(e))

	case *protocol.GCEvent:
		if s.gcHistory.Observe(e) {
			s.log.Debug("Major GC", "type", e.GCType, "reason", e.Reason)
		}

	case *protocol.ExtensionEvent:
		if e.Kind == "Flutter.Error" {
			printEntry(events.InterpretFlutterError(e.Data))
		} else {
			s.log.Debug("Extension event", "kind", e.Kind)
		}

	case *protocol.UnknownEvent:
		s.log.Debug("Unknown service event", "name", e.Name)
	}
}

// attachService dials the VM service once the app reports its debug
// port and subscribes to the streams fterm interprets.
func (s *session) attachService(ctx context.Context, uri string) {
	if s.service != nil {
		return
	}

	client, err := vmservice.Dial(ctx, s.log, uri)
	if err != nil {
		s.log.Warn("VM service attach failed", "uri", uri, "error", err)

		return
	}

	for _, stream := range []string{"Logging", "GC", "Extension"} {
		if err := client.StreamListen(ctx, stream, streamListenWindow); err != nil {
			s.log.Warn("Stream subscription failed", "stream", stream, "error", err)
		}
	}

	s.service = client
}

// printEntry renders one interpreted entry to stdout.
func printEntry(e events.Entry) {
	if e.Message == "" {
		return
	}

	fmt.Printf("[%s] %s\n", e.Severity, e.Message)

	for _, frame := range e.Frames {
		fmt.Printf("    #%d %s (%s:%d:%d)\n", frame.Index, frame.Member, frame.Location, frame.Line, frame.Column)
	}
}
