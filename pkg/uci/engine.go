// Package uci speaks the Universal Chess Interface protocol to a single
// engine subprocess over stdin/stdout.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// Engine represents a UCI chess engine subprocess.
type Engine struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	mutex   sync.Mutex
	ready   bool
	info    EngineInfo
}

// EngineInfo contains engine identification information, collected from the
// "id name"/"id author" lines during Initialize.
type EngineInfo struct {
	Name   string
	Author string
}

// Option represents a UCI option as advertised during the uci handshake.
type Option struct {
	Name    string
	Type    string
	Default string
	Min     int
	Max     int
	Var     []string
}

// SearchResult contains the result of a position search.
type SearchResult struct {
	BestMove           string
	PonderMove         string
	Score              int
	ScoreType          string // "cp" for centipawns, "mate" for mate
	Depth              int
	SelDepth           int
	Nodes              int64
	NodesPerSecond     int64
	Time               int
	PrincipalVariation []string
	MultiPV            int
}

// NewEngine starts the engine binary at binaryPath and wires its pipes.
func NewEngine(binaryPath string) (*Engine, error) {
	cmd := exec.Command(binaryPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &Engine{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		scanner: scanner,
	}, nil
}

// Initialize performs the uci/isready handshake and records engine identity.
func (e *Engine) Initialize() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.sendCommand("uci"); err != nil {
		return err
	}

	for e.scanner.Scan() {
		line := strings.TrimSpace(e.scanner.Text())
		switch {
		case strings.HasPrefix(line, "id name "):
			e.info.Name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "id author "):
			e.info.Author = strings.TrimPrefix(line, "id author ")
		case line == "uciok":
			if err := e.scanner.Err(); err != nil {
				return err
			}
			goto handshakeDone
		}
	}
	if err := e.scanner.Err(); err != nil {
		return err
	}

handshakeDone:
	if err := e.sendCommand("isready"); err != nil {
		return err
	}

	for e.scanner.Scan() {
		if strings.TrimSpace(e.scanner.Text()) == "readyok" {
			e.ready = true
			break
		}
	}

	return e.scanner.Err()
}

// GetEngineInfo returns the identity collected during Initialize.
func (e *Engine) GetEngineInfo() EngineInfo {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.info
}

// SetOption sets a UCI option.
func (e *Engine) SetOption(name, value string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	cmd := fmt.Sprintf("setoption name %s value %s", name, value)
	return e.sendCommand(cmd)
}

// NewGame prepares the engine for a new game.
func (e *Engine) NewGame() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.sendCommand("ucinewgame")
}

// SetPosition sets the current position from FEN (or "startpos") plus moves.
func (e *Engine) SetPosition(fen string, moves []string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	var cmd string
	if fen == "" || fen == "startpos" {
		cmd = "position startpos"
	} else {
		cmd = fmt.Sprintf("position fen %s", fen)
	}

	if len(moves) > 0 {
		cmd += " moves " + strings.Join(moves, " ")
	}

	return e.sendCommand(cmd)
}

// Search performs a search on the current position and blocks until
// "bestmove" is seen or ctx is done. On ctx cancellation the engine is
// SIGKILLed rather than asked to "stop", since a wedged engine may never
// honor stop either (spec §4.1: escalate to SIGKILL past the deadline).
func (e *Engine) Search(ctx context.Context, depth int, timeMs int, multiPV int) (*SearchResult, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if multiPV > 1 {
		if err := e.sendCommand(fmt.Sprintf("setoption name MultiPV value %d", multiPV)); err != nil {
			return nil, err
		}
	}

	var searchCmd strings.Builder
	searchCmd.WriteString("go")
	if depth > 0 {
		fmt.Fprintf(&searchCmd, " depth %d", depth)
	}
	if timeMs > 0 {
		fmt.Fprintf(&searchCmd, " movetime %d", timeMs)
	}

	if err := e.sendCommand(searchCmd.String()); err != nil {
		return nil, err
	}

	resultCh := make(chan *SearchResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := e.readSearchOutput()
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		e.kill()
		return nil, fmt.Errorf("search cancelled: %w", ctx.Err())
	}
}

func (e *Engine) readSearchOutput() (*SearchResult, error) {
	result := &SearchResult{}
	var lastInfo map[string]interface{}

	for e.scanner.Scan() {
		line := strings.TrimSpace(e.scanner.Text())

		if strings.HasPrefix(line, "info") {
			if info := parseInfoLine(line); info != nil {
				lastInfo = info
			}
		} else if strings.HasPrefix(line, "bestmove") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				result.BestMove = parts[1]
			}
			if len(parts) >= 4 && parts[2] == "ponder" {
				result.PonderMove = parts[3]
			}
			break
		}
	}
	if err := e.scanner.Err(); err != nil {
		return nil, err
	}

	applySearchInfo(result, lastInfo)
	return result, nil
}

func applySearchInfo(result *SearchResult, lastInfo map[string]interface{}) {
	if lastInfo == nil {
		return
	}
	if score, ok := lastInfo["score"].(map[string]interface{}); ok {
		if cp, ok := score["cp"]; ok {
			result.Score = cp.(int)
			result.ScoreType = "cp"
		} else if mate, ok := score["mate"]; ok {
			result.Score = mate.(int)
			result.ScoreType = "mate"
		}
	}
	if depth, ok := lastInfo["depth"]; ok {
		result.Depth = depth.(int)
	}
	if seldepth, ok := lastInfo["seldepth"]; ok {
		result.SelDepth = seldepth.(int)
	}
	if nodes, ok := lastInfo["nodes"]; ok {
		result.Nodes = nodes.(int64)
	}
	if nps, ok := lastInfo["nps"]; ok {
		result.NodesPerSecond = nps.(int64)
	}
	if t, ok := lastInfo["time"]; ok {
		result.Time = t.(int)
	}
	if pv, ok := lastInfo["pv"]; ok {
		result.PrincipalVariation = pv.([]string)
	}
	if multipv, ok := lastInfo["multipv"]; ok {
		result.MultiPV = multipv.(int)
	}
}

// Stop stops the current search.
func (e *Engine) Stop() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.sendCommand("stop")
}

// Quit sends the quit command and waits for the process to exit gracefully.
func (e *Engine) Quit() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.sendCommand("quit"); err != nil {
		return err
	}
	return e.cmd.Wait()
}

// Close force-terminates the engine process without waiting for "quit" to
// be honored; used by the pool when an engine is suspected wedged or on
// pool shutdown where a graceful quit isn't worth the wait.
func (e *Engine) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.kill()
}

// kill escalates to SIGKILL. Caller must hold the mutex.
func (e *Engine) kill() error {
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	return e.cmd.Process.Signal(syscall.SIGKILL)
}

// Exited reports whether the underlying process has already exited.
func (e *Engine) Exited() bool {
	return e.cmd.ProcessState != nil
}

// IsReady reports whether the handshake completed successfully.
func (e *Engine) IsReady() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.ready
}

// sendCommand sends a command to the engine. Caller must hold the mutex.
func (e *Engine) sendCommand(cmd string) error {
	_, err := fmt.Fprintln(e.stdin, cmd)
	return err
}

// parseInfoLine parses a single UCI "info ..." line into a loose map.
func parseInfoLine(line string) map[string]interface{} {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "info" {
		return nil
	}

	info := make(map[string]interface{})

	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "depth", "seldepth", "time", "multipv":
			if i+1 < len(parts) {
				if val, err := strconv.Atoi(parts[i+1]); err == nil {
					info[parts[i]] = val
					i++
				}
			}
		case "nodes", "nps":
			if i+1 < len(parts) {
				if val, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
					info[parts[i]] = val
					i++
				}
			}
		case "score":
			if i+1 < len(parts) {
				scoreInfo := make(map[string]interface{})
				i++
				if parts[i] == "cp" && i+1 < len(parts) {
					if val, err := strconv.Atoi(parts[i+1]); err == nil {
						scoreInfo["cp"] = val
						i++
					}
				} else if parts[i] == "mate" && i+1 < len(parts) {
					if val, err := strconv.Atoi(parts[i+1]); err == nil {
						scoreInfo["mate"] = val
						i++
					}
				}
				info["score"] = scoreInfo
			}
		case "pv":
			var pv []string
			for j := i + 1; j < len(parts); j++ {
				if isUCIKeyword(parts[j]) {
					break
				}
				pv = append(pv, parts[j])
			}
			info["pv"] = pv
			i = len(parts)
		}
	}

	return info
}

func isUCIKeyword(s string) bool {
	switch s {
	case "depth", "seldepth", "time", "nodes", "pv", "multipv", "score", "cp", "mate", "nps":
		return true
	default:
		return false
	}
}
