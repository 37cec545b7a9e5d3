package modules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// Copy places a file on the remote host, comparing SHA256 checksums to decide
// whether an upload is needed.
//
// Params: dest (required), and exactly one of src (local file path) or
// content (inline string). mode is an octal string (default "0644").
type Copy struct{}

func (m *Copy) Name() string { return "copy" }

// payload resolves the desired file content.
func (m *Copy) payload(p Params) ([]byte, error) {
	src := p.String("src")
	content, hasContent := p["content"].(string)

	switch {
	case src != "" && hasContent:
		return nil, &ModuleError{Module: m.Name(), Reason: `parameters "src" and "content" are mutually exclusive`}
	case src != "":
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, &ModuleError{Module: m.Name(), Reason: fmt.Sprintf("cannot read source file %s", src), Detail: err.Error()}
		}
		return data, nil
	case hasContent:
		return []byte(content), nil
	default:
		return nil, &ModuleError{Module: m.Name(), Reason: `one of "src" or "content" is required`}
	}
}

func (m *Copy) mode(p Params) (uint32, error) {
	modeStr := p.String("mode")
	if modeStr == "" {
		modeStr = "0644"
	}
	mode, err := strconv.ParseUint(modeStr, 8, 32)
	if err != nil {
		return 0, &ModuleError{Module: m.Name(), Reason: fmt.Sprintf("invalid mode %q", modeStr)}
	}
	return uint32(mode), nil
}

func (m *Copy) Probe(ctx context.Context, conn Conn, req Request) (Probe, error) {
	dest, err := req.Params.StringRequired(m.Name(), "dest")
	if err != nil {
		return Probe{}, err
	}
	data, err := m.payload(req.Params)
	if err != nil {
		return Probe{}, err
	}
	if _, err := m.mode(req.Params); err != nil {
		return Probe{}, err
	}

	want := sha256.Sum256(data)
	wantSum := hex.EncodeToString(want[:])

	gotSum, err := conn.Checksum(ctx, dest)
	if err != nil {
		return Probe{}, err
	}

	if gotSum == wantSum {
		return Probe{Matches: true}, nil
	}
	if gotSum == "" {
		return Probe{Diff: fmt.Sprintf("create %s (%d bytes)", dest, len(data))}, nil
	}
	return Probe{Diff: fmt.Sprintf("replace %s (checksum %.12s.. -> %.12s..)", dest, gotSum, wantSum)}, nil
}

func (m *Copy) Apply(ctx context.Context, conn Conn, req Request, probe Probe) error {
	dest, err := req.Params.StringRequired(m.Name(), "dest")
	if err != nil {
		return err
	}
	data, err := m.payload(req.Params)
	if err != nil {
		return err
	}
	mode, err := m.mode(req.Params)
	if err != nil {
		return err
	}

	return conn.Upload(ctx, data, dest, mode)
}
