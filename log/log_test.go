// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	const (
		msg1 = "log line1"
		msg2 = "log line2"
		msg3 = "log line3"
	)
	setMockLogger(fmt.Sprintf("%shello: %s", msg2, msg3), false)

	level := "info"
	SetLevel(level)
	if GetLevel() != level {
		t.Fatalf("Expected %q, got %q", level, GetLevel())
	}
	Debug.Println(msg1)             // not logged
	Info.Print(msg2)                // logged
	Error.Printf("hello: %s", msg3) // logged

	globals().defaultLogger.(*mockLogger).Verify(t)
}

func TestDisable(t *testing.T) {
	setMockLogger("Starting server...", false)
	SetLevel("debug")
	Debug.Printf("Starting server...")
	SetLevel("disabled")
	Error.Printf("Important stuff you'll miss!")
	globals().defaultLogger.(*mockLogger).Verify(t)
}

func TestFatal(t *testing.T) {
	const msg = "will abort anyway"

	setMockLogger(msg, true)

	SetLevel("error")
	Info.Fatal(msg)

	globals().defaultLogger.(*mockLogger).Verify(t)
}

func TestAt(t *testing.T) {
	SetLevel("info")

	if At("debug") {
		t.Errorf("Debug is expected to be disabled when level is info")
	}
	if !At("error") {
		t.Errorf("Error is expected to be enabled when level is info")
	}
}

func TestBadLevel(t *testing.T) {
	SetLevel("info")
	if err := SetLevel("chatty"); err == nil {
		t.Fatal("SetLevel accepted an unknown level")
	}
	if got := GetLevel(); got != "info" {
		t.Errorf("level after bad SetLevel = %q; want info", got)
	}
}

func TestSetOutput(t *testing.T) {
	defer SetOutput(nil)
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("debug")
	Debug.Printf("waiting for %s's lock in %s", "anoncvs", "/cvs/src")
	if !strings.Contains(buf.String(), "waiting for anoncvs's lock in /cvs/src") {
		t.Errorf("output %q does not contain message", buf.String())
	}
	if !strings.Contains(buf.String(), "level=debug") {
		t.Errorf("output %q does not record the level", buf.String())
	}
}

func setMockLogger(expected string, fatalExpected bool) {
	mu.Lock()
	state.defaultLogger = &mockLogger{
		fatalExpected: fatalExpected,
		expected:      expected,
	}
	mu.Unlock()
}

type mockLogger struct {
	fatalExpected bool
	fatal         bool
	expected      string
	logged        string
}

var _ Logger = (*mockLogger)(nil)

func (ml *mockLogger) Printf(format string, v ...interface{}) {
	ml.logged += fmt.Sprintf(format, v...)
}

func (ml *mockLogger) Print(v ...interface{}) {
	ml.logged += fmt.Sprint(v...)
}

func (ml *mockLogger) Println(v ...interface{}) {
	ml.logged += fmt.Sprintln(v...)
}

func (ml *mockLogger) Fatal(v ...interface{}) {
	ml.fatal = true
	ml.Print(v...)
}

func (ml *mockLogger) Fatalf(format string, v ...interface{}) {
	ml.fatal = true
	ml.Printf(format, v...)
}

func (ml *mockLogger) Verify(t *testing.T) {
	if ml.logged != ml.expected {
		t.Errorf("Expected %q, got %q", ml.expected, ml.logged)
	}
	if ml.fatal != ml.fatalExpected {
		t.Errorf("Expected fatal %v, got %v", ml.fatalExpected, ml.fatal)
	}
}
