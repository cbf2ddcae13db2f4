// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

// Package p4info translates between the symbolic names of a P4 program and
// the numeric identifiers used by P4Runtime.
package p4info

import (
	"errors"
	"fmt"
	"os"

	p4_config_v1 "github.com/p4lang/p4runtime/go/p4/config/v1"
	"google.golang.org/protobuf/encoding/prototext"
)

var (
	ErrNotFound = errors.New("not found in p4info")
)

// Helper indexes a P4Info by name and by id.
type Helper struct {
	info         *p4_config_v1.P4Info
	tablesByName map[string]*p4_config_v1.Table
	tablesByID   map[uint32]*p4_config_v1.Table
	actionByName map[string]*p4_config_v1.Action
	actionByID   map[uint32]*p4_config_v1.Action
}

// Load reads a text format P4Info file as emitted by p4c.
func Load(path string) (*Helper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read p4info %s: %w", path, err)
	}
	info := &p4_config_v1.P4Info{}
	if err := prototext.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("parse p4info %s: %w", path, err)
	}
	return New(info), nil
}

// New builds a Helper around an already parsed P4Info.
func New(info *p4_config_v1.P4Info) *Helper {
	h := &Helper{
		info:         info,
		tablesByName: map[string]*p4_config_v1.Table{},
		tablesByID:   map[uint32]*p4_config_v1.Table{},
		actionByName: map[string]*p4_config_v1.Action{},
		actionByID:   map[uint32]*p4_config_v1.Action{},
	}
	for _, t := range info.GetTables() {
		p := t.GetPreamble()
		h.tablesByID[p.GetId()] = t
		h.tablesByName[p.GetName()] = t
		if p.GetAlias() != "" {
			h.tablesByName[p.GetAlias()] = t
		}
	}
	for _, a := range info.GetActions() {
		p := a.GetPreamble()
		h.actionByID[p.GetId()] = a
		h.actionByName[p.GetName()] = a
		if p.GetAlias() != "" {
			h.actionByName[p.GetAlias()] = a
		}
	}
	return h
}

// P4Info returns the underlying P4Info message.
func (h *Helper) P4Info() *p4_config_v1.P4Info {
	return h.info
}

func (h *Helper) table(name string) (*p4_config_v1.Table, error) {
	t, ok := h.tablesByName[name]
	if !ok {
		return nil, fmt.Errorf("table %q %w", name, ErrNotFound)
	}
	return t, nil
}

func (h *Helper) tableByID(id uint32) (*p4_config_v1.Table, error) {
	t, ok := h.tablesByID[id]
	if !ok {
		return nil, fmt.Errorf("table id %d %w", id, ErrNotFound)
	}
	return t, nil
}

func (h *Helper) action(name string) (*p4_config_v1.Action, error) {
	a, ok := h.actionByName[name]
	if !ok {
		return nil, fmt.Errorf("action %q %w", name, ErrNotFound)
	}
	return a, nil
}

func (h *Helper) actionByNumber(id uint32) (*p4_config_v1.Action, error) {
	a, ok := h.actionByID[id]
	if !ok {
		return nil, fmt.Errorf("action id %d %w", id, ErrNotFound)
	}
	return a, nil
}

// TableID resolves a table name or alias.
func (h *Helper) TableID(name string) (uint32, error) {
	t, err := h.table(name)
	if err != nil {
		return 0, err
	}
	return t.GetPreamble().GetId(), nil
}

// TableName resolves a table id to its full name.
func (h *Helper) TableName(id uint32) (string, error) {
	t, err := h.tableByID(id)
	if err != nil {
		return "", err
	}
	return t.GetPreamble().GetName(), nil
}

// ActionID resolves an action name or alias.
func (h *Helper) ActionID(name string) (uint32, error) {
	a, err := h.action(name)
	if err != nil {
		return 0, err
	}
	return a.GetPreamble().GetId(), nil
}

// ActionName resolves an action id to its full name.
func (h *Helper) ActionName(id uint32) (string, error) {
	a, err := h.actionByNumber(id)
	if err != nil {
		return "", err
	}
	return a.GetPreamble().GetName(), nil
}

// MatchField looks up a match field of table by name.
func (h *Helper) MatchField(table, field string) (*p4_config_v1.MatchField, error) {
	t, err := h.table(table)
	if err != nil {
		return nil, err
	}
	for _, mf := range t.GetMatchFields() {
		if mf.GetName() == field {
			return mf, nil
		}
	}
	return nil, fmt.Errorf("match field %q of table %q %w", field, table, ErrNotFound)
}

// MatchFieldByID looks up a match field of table by id.
func (h *Helper) MatchFieldByID(table string, id uint32) (*p4_config_v1.MatchField, error) {
	t, err := h.table(table)
	if err != nil {
		return nil, err
	}
	for _, mf := range t.GetMatchFields() {
		if mf.GetId() == id {
			return mf, nil
		}
	}
	return nil, fmt.Errorf("match field id %d of table %q %w", id, table, ErrNotFound)
}

// ActionParam looks up a parameter of action by name.
func (h *Helper) ActionParam(action, param string) (*p4_config_v1.Action_Param, error) {
	a, err := h.action(action)
	if err != nil {
		return nil, err
	}
	for _, p := range a.GetParams() {
		if p.GetName() == param {
			return p, nil
		}
	}
	return nil, fmt.Errorf("param %q of action %q %w", param, action, ErrNotFound)
}

// ActionParamByID looks up a parameter of action by id.
func (h *Helper) ActionParamByID(action string, id uint32) (*p4_config_v1.Action_Param, error) {
	a, err := h.action(action)
	if err != nil {
		return nil, err
	}
	for _, p := range a.GetParams() {
		if p.GetId() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("param id %d of action %q %w", id, action, ErrNotFound)
}
