// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package p4info

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"

	p4_config_v1 "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4_v1 "github.com/p4lang/p4runtime/go/p4/v1"
)

var (
	ErrValueOverflow   = errors.New("value does not fit field bitwidth")
	ErrUnsupportedType = errors.New("unsupported value type")
	ErrUnsupportedKind = errors.New("unsupported match kind")
)

// Match is one symbolic match field. PrefixLen is only used by LPM fields.
type Match struct {
	Field     string
	Value     interface{}
	PrefixLen int32
}

// Param is one symbolic action parameter.
type Param struct {
	Name  string
	Value interface{}
}

// Entry is a table entry expressed with names instead of ids. Default entries
// carry no matches and replace the table miss action.
type Entry struct {
	Table   string
	Default bool
	Matches []Match
	Action  string
	Params  []Param
}

func (e Entry) String() string {
	var sb strings.Builder
	sb.WriteString(e.Table)
	sb.WriteString(":")
	if e.Default {
		sb.WriteString(" (default)")
	}
	for _, m := range e.Matches {
		fmt.Fprintf(&sb, " %s %v", m.Field, m.Value)
		if m.PrefixLen > 0 {
			fmt.Fprintf(&sb, "/%d", m.PrefixLen)
		}
	}
	sb.WriteString(" -> ")
	sb.WriteString(e.Action)
	for _, p := range e.Params {
		fmt.Fprintf(&sb, " %s %v", p.Name, p.Value)
	}
	return sb.String()
}

// BuildTableEntry translates a symbolic entry into its P4Runtime form.
func (h *Helper) BuildTableEntry(e Entry) (*p4_v1.TableEntry, error) {
	tableID, err := h.TableID(e.Table)
	if err != nil {
		return nil, err
	}
	entry := &p4_v1.TableEntry{
		TableId:         tableID,
		IsDefaultAction: e.Default,
	}
	if e.Default && len(e.Matches) > 0 {
		return nil, fmt.Errorf("default entry for %s must not carry match fields", e.Table)
	}
	for _, m := range e.Matches {
		fm, err := h.buildFieldMatch(e.Table, m)
		if err != nil {
			return nil, err
		}
		entry.Match = append(entry.Match, fm)
	}
	if e.Action != "" {
		action, err := h.buildAction(e.Action, e.Params)
		if err != nil {
			return nil, err
		}
		entry.Action = &p4_v1.TableAction{
			Type: &p4_v1.TableAction_Action{Action: action},
		}
	}
	return entry, nil
}

func (h *Helper) buildFieldMatch(table string, m Match) (*p4_v1.FieldMatch, error) {
	mf, err := h.MatchField(table, m.Field)
	if err != nil {
		return nil, err
	}
	value, err := EncodeValue(m.Value, mf.GetBitwidth())
	if err != nil {
		return nil, fmt.Errorf("match field %s: %w", m.Field, err)
	}
	fm := &p4_v1.FieldMatch{FieldId: mf.GetId()}
	switch mf.GetMatchType() {
	case p4_config_v1.MatchField_EXACT:
		fm.FieldMatchType = &p4_v1.FieldMatch_Exact_{
			Exact: &p4_v1.FieldMatch_Exact{Value: value},
		}
	case p4_config_v1.MatchField_LPM:
		if m.PrefixLen < 0 || m.PrefixLen > mf.GetBitwidth() {
			return nil, fmt.Errorf("match field %s: prefix length %d out of range [0, %d]", m.Field, m.PrefixLen, mf.GetBitwidth())
		}
		fm.FieldMatchType = &p4_v1.FieldMatch_Lpm{
			Lpm: &p4_v1.FieldMatch_LPM{Value: value, PrefixLen: m.PrefixLen},
		}
	default:
		return nil, fmt.Errorf("match field %s: %w %s", m.Field, ErrUnsupportedKind, mf.GetMatchType())
	}
	return fm, nil
}

func (h *Helper) buildAction(name string, params []Param) (*p4_v1.Action, error) {
	actionID, err := h.ActionID(name)
	if err != nil {
		return nil, err
	}
	action := &p4_v1.Action{ActionId: actionID}
	for _, p := range params {
		ap, err := h.ActionParam(name, p.Name)
		if err != nil {
			return nil, err
		}
		value, err := EncodeValue(p.Value, ap.GetBitwidth())
		if err != nil {
			return nil, fmt.Errorf("action param %s: %w", p.Name, err)
		}
		action.Params = append(action.Params, &p4_v1.Action_Param{
			ParamId: ap.GetId(),
			Value:   value,
		})
	}
	return action, nil
}

// DescribeTableEntry resolves every id of a read back entry into its name and
// renders the values. LPM values keep their prefix length.
func (h *Helper) DescribeTableEntry(te *p4_v1.TableEntry) (Entry, error) {
	table, err := h.TableName(te.GetTableId())
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Table: table, Default: te.GetIsDefaultAction()}
	for _, fm := range te.GetMatch() {
		mf, err := h.MatchFieldByID(table, fm.GetFieldId())
		if err != nil {
			return Entry{}, err
		}
		m := Match{Field: mf.GetName()}
		switch {
		case fm.GetExact() != nil:
			m.Value = FormatValue(fm.GetExact().GetValue(), mf.GetBitwidth(), false)
		case fm.GetLpm() != nil:
			m.Value = FormatValue(fm.GetLpm().GetValue(), mf.GetBitwidth(), true)
			m.PrefixLen = fm.GetLpm().GetPrefixLen()
		default:
			return Entry{}, fmt.Errorf("match field %s: %w", mf.GetName(), ErrUnsupportedKind)
		}
		e.Matches = append(e.Matches, m)
	}
	action := te.GetAction().GetAction()
	if action == nil {
		return e, nil
	}
	e.Action, err = h.ActionName(action.GetActionId())
	if err != nil {
		return Entry{}, err
	}
	for _, p := range action.GetParams() {
		ap, err := h.ActionParamByID(e.Action, p.GetParamId())
		if err != nil {
			return Entry{}, err
		}
		e.Params = append(e.Params, Param{
			Name:  ap.GetName(),
			Value: FormatValue(p.GetValue(), ap.GetBitwidth(), false),
		})
	}
	return e, nil
}

// EncodeValue encodes v as a big endian byte string of (bitwidth+7)/8 bytes.
// Strings are read as an IP address, a MAC address or a decimal number.
func EncodeValue(v interface{}, bitwidth int32) ([]byte, error) {
	var raw []byte
	switch x := v.(type) {
	case net.IP:
		if ip4 := x.To4(); ip4 != nil && bitwidth <= 32 {
			raw = ip4
		} else {
			raw = x.To16()
		}
	case net.HardwareAddr:
		raw = x
	case []byte:
		raw = x
	case uint8:
		raw = uintBytes(uint64(x))
	case uint16:
		raw = uintBytes(uint64(x))
	case uint32:
		raw = uintBytes(uint64(x))
	case uint64:
		raw = uintBytes(x)
	case uint:
		raw = uintBytes(uint64(x))
	case int:
		if x < 0 {
			return nil, fmt.Errorf("%w: negative value %d", ErrValueOverflow, x)
		}
		raw = uintBytes(uint64(x))
	case string:
		return encodeString(x, bitwidth)
	default:
		return nil, fmt.Errorf("%w %T", ErrUnsupportedType, v)
	}
	return fit(raw, bitwidth)
}

func encodeString(s string, bitwidth int32) ([]byte, error) {
	if ip := net.ParseIP(s); ip != nil {
		return EncodeValue(ip, bitwidth)
	}
	if mac, err := net.ParseMAC(s); err == nil {
		return EncodeValue(mac, bitwidth)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode %q", ErrUnsupportedType, s)
	}
	return EncodeValue(n, bitwidth)
}

func uintBytes(n uint64) []byte {
	return new(big.Int).SetUint64(n).FillBytes(make([]byte, 8))
}

func fit(raw []byte, bitwidth int32) ([]byte, error) {
	if bitwidth <= 0 {
		return nil, fmt.Errorf("%w: bitwidth %d", ErrValueOverflow, bitwidth)
	}
	width := int((bitwidth + 7) / 8)
	for len(raw) > width && raw[0] == 0 {
		raw = raw[1:]
	}
	if len(raw) > width {
		return nil, fmt.Errorf("%w: %d bytes into %d bits", ErrValueOverflow, len(raw), bitwidth)
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	if spare := width*8 - int(bitwidth); spare > 0 && out[0]>>(8-spare) != 0 {
		return nil, fmt.Errorf("%w: %#x into %d bits", ErrValueOverflow, out, bitwidth)
	}
	return out, nil
}

// FormatValue renders a field value for display: 32-bit LPM values as IPv4
// addresses, 48-bit values as MAC addresses and anything else as an unsigned
// decimal number.
func FormatValue(b []byte, bitwidth int32, lpm bool) string {
	switch {
	case bitwidth == 32 && lpm:
		return net.IP(pad(b, 4)).String()
	case bitwidth == 48:
		return net.HardwareAddr(pad(b, 6)).String()
	default:
		return new(big.Int).SetBytes(b).String()
	}
}

func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[len(b)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
