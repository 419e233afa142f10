package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

const (
	micSampleRateHz      = 16000
	playbackSampleRateHz = 24000
)

// micCapture pipes raw s16le microphone audio out of an ffmpeg child
// process. It satisfies the engine's AudioSource.
type micCapture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func newMicCapture() (*micCapture, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for voice mode (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &micCapture{cmd: cmd, stdout: stdout}, nil
}

func micArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("voice capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *micCapture) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return m.stdout.Read(p)
}

func (m *micCapture) Close() error {
	if m == nil {
		return nil
	}
	if m.stdout != nil {
		m.stdout.Close()
	}
	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
	}
	return nil
}

// pcmPlayer pipes raw s16le audio into an ffplay child process. It satisfies
// the engine's AudioSink.
type pcmPlayer struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func newPCMPlayer() (*pcmPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for voice playback (install ffmpeg and ensure it is in PATH)")
	}
	cmd := exec.Command("ffplay",
		"-hide_banner", "-loglevel", "error",
		"-autoexit", "-nodisp",
		"-f", "s16le", "-ar", fmt.Sprintf("%d", playbackSampleRateHz), "-ch_layout", "mono",
		"-i", "-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	return &pcmPlayer{cmd: cmd, stdin: stdin}, nil
}

func (p *pcmPlayer) Write(b []byte) (int, error) {
	if p == nil || p.stdin == nil {
		return 0, errors.New("player is closed")
	}
	return p.stdin.Write(b)
}

func (p *pcmPlayer) Close() error {
	if p == nil {
		return nil
	}
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
	return nil
}
