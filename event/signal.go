package event

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yanet-platform/daemonrt/rio"
)

// stopSentinel is written to the signal pipe by Stop() to request
// shutdown directly, without going through a real signal — a caller may
// want to stop the loop for reasons that have nothing to do with one.
// Never a valid signal number.
const stopSentinel int32 = -1

// signalBridge is the self-pipe: a goroutine receives on a Go signal
// channel and forwards the signal number into a rio.Pipe registered as a
// generic read source, so the loop only ever blocks in one place (the
// backend's Wait) and signal delivery participates in the same
// read-handler dispatch as every other source.
type signalBridge struct {
	pipe    *rio.Pipe
	sigCh   chan os.Signal
	log     *zap.SugaredLogger
	sigusr1 func()
}

func newSignalBridge(l *Loop, log *zap.SugaredLogger, sigusr1 func()) (*signalBridge, error) {
	pipe, err := rio.NewPipe(rio.PipeNonBlockingRead)
	if err != nil {
		return nil, err
	}

	sb := &signalBridge{pipe: pipe, log: log, sigusr1: sigusr1}

	if err := l.AddSource(pipe.ReadFd(), SourceGeneric, EventRead, func() { sb.handleRead(l) }, nil); err != nil {
		pipe.Close()
		return nil, err
	}

	sb.sigCh = make(chan os.Signal, 8)
	signal.Notify(sb.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	go sb.forward()

	return sb, nil
}

func (sb *signalBridge) forward() {
	for sig := range sb.sigCh {
		n, ok := sig.(syscall.Signal)
		if !ok {
			continue
		}
		sb.write(int32(n))
	}
}

func (sb *signalBridge) write(n int32) {
	var buf [4]byte
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
	buf[3] = byte(n >> 24)
	if _, err := sb.pipe.Write(buf[:]); err != nil {
		sb.log.Warnw("could not write to signal pipe", "error", err)
	}
}

func (sb *signalBridge) requestStop() {
	sb.write(stopSentinel)
}

func (sb *signalBridge) handleRead(l *Loop) {
	var buf [4]byte
	nread, err := sb.pipe.Read(buf[:])
	if err != nil || nread != 4 {
		sb.log.Errorw("could not read from signal pipe", "error", err)
		return
	}
	n := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24

	switch syscall.Signal(n) {
	case syscall.SIGINT:
		sb.log.Infow("received SIGINT")
		l.doStop()
	case syscall.SIGTERM:
		sb.log.Infow("received SIGTERM")
		l.doStop()
	case syscall.SIGUSR1:
		sb.log.Infow("received SIGUSR1")
		if sb.sigusr1 != nil {
			sb.sigusr1()
		}
	default:
		if n == stopSentinel {
			l.doStop()
			return
		}
		sb.log.Warnw("received unexpected signal", "signal", n)
	}
}

// close performs ordered teardown: stop receiving signals, restore
// default dispositions, unregister and close the pipe, then close the
// backend, accumulating any errors with multierr rather than stopping at
// the first one.
func (sb *signalBridge) close(l *Loop) error {
	signal.Stop(sb.sigCh)
	close(sb.sigCh)
	signal.Reset(syscall.SIGPIPE)

	l.RemoveSource(sb.pipe.ReadFd(), SourceGeneric)
	l.CleanupSources()

	var err error
	err = multierr.Append(err, sb.pipe.Close())
	err = multierr.Append(err, l.backend.Close())
	return err
}
