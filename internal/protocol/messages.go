// Package protocol defines the wire message protocol exchanged between
// the session hub and its clients: a tagged union of JSON objects, one
// message per WebSocket frame, the idiomatic-Go rendering of the
// specification's printed s-expression `(TYPE BODY…)` framing.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/collabtext/scribe/pkg/crdt"
)

// Msg is the single envelope type carried over every connection, in
// either direction. Exactly one field is set per message — the same
// tagged-union-via-custom-marshal pattern this stack's ambient JSON
// framing already uses.
type Msg struct {
	Hello         *HelloMsg         `json:"Hello,omitempty"`
	Challenge     *ChallengeMsg     `json:"Challenge,omitempty"`
	Login         *LoginMsg         `json:"Login,omitempty"`
	Sync          *SyncMsg          `json:"Sync,omitempty"`
	Desync        *DesyncMsg        `json:"Desync,omitempty"`
	Insert        *InsertMsg        `json:"Insert,omitempty"`
	Delete        *DeleteMsg        `json:"Delete,omitempty"`
	Cursor        *CursorMsg        `json:"Cursor,omitempty"`
	Contact       *ContactMsg       `json:"Contact,omitempty"`
	Focus         *FocusMsg         `json:"Focus,omitempty"`
	OverlayAdd    *OverlayAddMsg    `json:"OverlayAdd,omitempty"`
	OverlayMove   *OverlayMoveMsg   `json:"OverlayMove,omitempty"`
	OverlayPut    *OverlayPutMsg    `json:"OverlayPut,omitempty"`
	OverlayRemove *OverlayRemoveMsg `json:"OverlayRemove,omitempty"`
	Get           *GetMsg           `json:"Get,omitempty"`
}

// HelloMsg is the client's greeting, optionally carrying an HMAC response
// to a prior Challenge.
type HelloMsg struct {
	Name     string `json:"name"`
	Response []byte `json:"response,omitempty"`
}

// ChallengeMsg is the server's authentication challenge.
type ChallengeMsg struct {
	Salt []byte `json:"salt"`
}

// LoginMsg confirms an accepted connection with its assigned site ID.
type LoginMsg struct {
	SiteID      uint16 `json:"siteId"`
	SessionName string `json:"sessionName"`
}

// SyncMsg is a full-buffer bootstrap snapshot. Runs mirrors crdt.IDRun
// with its Base field base64-encoded for the wire.
type SyncMsg struct {
	Buffer    string    `json:"buffer"`
	MajorMode string    `json:"majorMode"`
	Content   string    `json:"content"`
	Runs      []WireRun `json:"runs"`
}

// WireRun is the base64-safe wire encoding of crdt.IDRun.
type WireRun struct {
	Length int    `json:"length"`
	Base   string `json:"base"`
	EOB    bool   `json:"eob"`
}

// DesyncMsg announces that buffer is no longer shared.
type DesyncMsg struct {
	Buffer string `json:"buffer"`
}

// InsertMsg carries one local-insert-derived operation.
type InsertMsg struct {
	Buffer  string `json:"buffer"`
	ID      string `json:"id"` // base64
	PosHint int    `json:"posHint"`
	Content string `json:"content"`
}

// DeleteMsg carries one local-delete-derived operation.
type DeleteMsg struct {
	Buffer  string       `json:"buffer"`
	PosHint int          `json:"posHint"`
	Runs    []WireDelRun `json:"runs"`
}

// WireDelRun is the wire encoding of one crdt.DeletedRun.
type WireDelRun struct {
	Length int    `json:"length"`
	Base   string `json:"base"` // base64
}

// CursorMsg replicates a site's point/mark. PointID nil means "clear"; a
// decoded empty ID means end of document. MarkID nil/absent means no mark.
type CursorMsg struct {
	Buffer    string  `json:"buffer"`
	SiteID    uint16  `json:"siteId"`
	PointHint int     `json:"pointHint"`
	PointID   *string `json:"pointId"`
	MarkHint  int     `json:"markHint"`
	MarkID    *string `json:"markId,omitempty"`
}

// ContactMsg announces a site joining, or (with DisplayName empty) a site's
// departure. Host/Port are optional and the hub never sets them.
type ContactMsg struct {
	SiteID      uint16  `json:"siteId"`
	DisplayName string  `json:"displayName"`
	Host        *string `json:"host,omitempty"`
	Port        *int    `json:"port,omitempty"`
}

// FocusMsg announces which buffer a site currently has focused.
type FocusMsg struct {
	SiteID uint16 `json:"siteId"`
	Buffer string `json:"buffer"`
}

// OverlayAddMsg creates a new overlay.
type OverlayAddMsg struct {
	Buffer       string `json:"buffer"`
	Site         uint16 `json:"site"`
	Clock        uint32 `json:"clock"`
	Species      string `json:"species"`
	FrontAdvance bool   `json:"frontAdvance"`
	RearAdvance  bool   `json:"rearAdvance"`
	StartHint    int    `json:"startHint"`
	StartID      string `json:"startId"` // base64, may decode to empty
	EndHint      int    `json:"endHint"`
	EndID        string `json:"endId"` // base64, may decode to empty
}

// OverlayMoveMsg republishes an existing overlay's endpoints.
type OverlayMoveMsg struct {
	Buffer    string `json:"buffer"`
	Site      uint16 `json:"site"`
	Clock     uint32 `json:"clock"`
	StartHint int    `json:"startHint"`
	StartID   string `json:"startId"`
	EndHint   int    `json:"endHint"`
	EndID     string `json:"endId"`
}

// OverlayPutMsg replicates a single overlay property.
type OverlayPutMsg struct {
	Buffer string `json:"buffer"`
	Site   uint16 `json:"site"`
	Clock  uint32 `json:"clock"`
	Prop   string `json:"prop"`
	Value  any    `json:"value"`
}

// OverlayRemoveMsg deletes an overlay.
type OverlayRemoveMsg struct {
	Buffer string `json:"buffer"`
	Site   uint16 `json:"site"`
	Clock  uint32 `json:"clock"`
}

// GetMsg is reserved for a future resync recovery path; the hub currently
// treats it as a no-op.
type GetMsg struct {
	Buffer string `json:"buffer"`
}

// EncodeID returns id's base64 wire encoding.
func EncodeID(id crdt.ID) string {
	return base64.StdEncoding.EncodeToString(id)
}

// DecodeID is the inverse of EncodeID. An empty string decodes to the
// empty (non-nil, zero-length) ID, distinct from a nil ID.
func DecodeID(s string) (crdt.ID, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("protocol: invalid base64 id %q: %w", s, err)
	}
	if b == nil {
		b = []byte{}
	}
	return crdt.ID(b), nil
}

// EncodeRuns converts a document's run-length annotation to its wire form.
func EncodeRuns(runs []crdt.IDRun) []WireRun {
	out := make([]WireRun, len(runs))
	for i, r := range runs {
		out[i] = WireRun{Length: r.Length, Base: EncodeID(r.Base), EOB: r.EOB}
	}
	return out
}

// DecodeRuns is the inverse of EncodeRuns.
func DecodeRuns(runs []WireRun) ([]crdt.IDRun, error) {
	out := make([]crdt.IDRun, len(runs))
	for i, r := range runs {
		id, err := DecodeID(r.Base)
		if err != nil {
			return nil, err
		}
		out[i] = crdt.IDRun{Length: r.Length, Base: id, EOB: r.EOB}
	}
	return out, nil
}

// EncodeDeletedRuns converts a delete operation's pre-image to wire form.
func EncodeDeletedRuns(runs []crdt.DeletedRun) []WireDelRun {
	out := make([]WireDelRun, len(runs))
	for i, r := range runs {
		out[i] = WireDelRun{Length: r.Length, Base: EncodeID(r.Base)}
	}
	return out
}

// DecodeDeletedRuns is the inverse of EncodeDeletedRuns.
func DecodeDeletedRuns(runs []WireDelRun) ([]crdt.DeletedRun, error) {
	out := make([]crdt.DeletedRun, len(runs))
	for i, r := range runs {
		id, err := DecodeID(r.Base)
		if err != nil {
			return nil, err
		}
		out[i] = crdt.DeletedRun{Length: r.Length, Base: id}
	}
	return out, nil
}

// MarshalJSON implements the tagged-union encoding: only the one set
// field is emitted, mirroring this stack's existing ServerMsg pattern.
func (m Msg) MarshalJSON() ([]byte, error) {
	result := make(map[string]any, 1)
	switch {
	case m.Hello != nil:
		result["Hello"] = m.Hello
	case m.Challenge != nil:
		result["Challenge"] = m.Challenge
	case m.Login != nil:
		result["Login"] = m.Login
	case m.Sync != nil:
		result["Sync"] = m.Sync
	case m.Desync != nil:
		result["Desync"] = m.Desync
	case m.Insert != nil:
		result["Insert"] = m.Insert
	case m.Delete != nil:
		result["Delete"] = m.Delete
	case m.Cursor != nil:
		result["Cursor"] = m.Cursor
	case m.Contact != nil:
		result["Contact"] = m.Contact
	case m.Focus != nil:
		result["Focus"] = m.Focus
	case m.OverlayAdd != nil:
		result["OverlayAdd"] = m.OverlayAdd
	case m.OverlayMove != nil:
		result["OverlayMove"] = m.OverlayMove
	case m.OverlayPut != nil:
		result["OverlayPut"] = m.OverlayPut
	case m.OverlayRemove != nil:
		result["OverlayRemove"] = m.OverlayRemove
	case m.Get != nil:
		result["Get"] = m.Get
	}
	return json.Marshal(result)
}

// UnmarshalJSON implements the tagged-union decoding.
func (m *Msg) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type field struct {
		key string
		dst any
	}
	fields := []field{
		{"Hello", &m.Hello},
		{"Challenge", &m.Challenge},
		{"Login", &m.Login},
		{"Sync", &m.Sync},
		{"Desync", &m.Desync},
		{"Insert", &m.Insert},
		{"Delete", &m.Delete},
		{"Cursor", &m.Cursor},
		{"Contact", &m.Contact},
		{"Focus", &m.Focus},
		{"OverlayAdd", &m.OverlayAdd},
		{"OverlayMove", &m.OverlayMove},
		{"OverlayPut", &m.OverlayPut},
		{"OverlayRemove", &m.OverlayRemove},
		{"Get", &m.Get},
	}
	for _, f := range fields {
		rawField, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(rawField, f.dst); err != nil {
			return fmt.Errorf("protocol: decoding %s: %w", f.key, err)
		}
		return nil
	}
	return fmt.Errorf("protocol: message has no recognized tag")
}
