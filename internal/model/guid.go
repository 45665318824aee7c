package model

import (
	"fmt"
	"sync/atomic"
)

// ObjectType identifies the kind of world entity encoded in a GUID.
type ObjectType uint8

const (
	TypeNone ObjectType = iota
	TypePlayer
	TypeCreature
	TypeGameObject
	TypeAreaTrigger
	TypeDynamicObject
	TypeCorpse
	TypeTransport
)

func (t ObjectType) String() string {
	switch t {
	case TypePlayer:
		return "player"
	case TypeCreature:
		return "creature"
	case TypeGameObject:
		return "gameobject"
	case TypeAreaTrigger:
		return "areatrigger"
	case TypeDynamicObject:
		return "dynamicobject"
	case TypeCorpse:
		return "corpse"
	case TypeTransport:
		return "transport"
	default:
		return "none"
	}
}

const (
	guidTypeShift   = 56
	guidCounterMask = (1 << guidTypeShift) - 1
)

// GUID identifies a world entity. High byte is the ObjectType, low 56 bits the counter.
// Zero is the empty GUID.
type GUID uint64

// MakeGUID builds a GUID from type and counter.
func MakeGUID(t ObjectType, counter uint64) GUID {
	return GUID(uint64(t)<<guidTypeShift | counter&guidCounterMask)
}

// Type returns the encoded object type.
func (g GUID) Type() ObjectType {
	return ObjectType(g >> guidTypeShift)
}

// Counter returns the low 56 bits.
func (g GUID) Counter() uint64 {
	return uint64(g) & guidCounterMask
}

// IsEmpty reports whether g is the zero GUID.
func (g GUID) IsEmpty() bool {
	return g == 0
}

func (g GUID) String() string {
	return fmt.Sprintf("%s-%d", g.Type(), g.Counter())
}

// GUIDGenerator hands out runtime GUIDs for one map instance.
// Players bring their own GUID (character id) and are not generated here.
type GUIDGenerator struct {
	counters [TypeTransport + 1]atomic.Uint64
}

// NewGUIDGenerator создаёт генератор; счётчики начинаются с 1.
func NewGUIDGenerator() *GUIDGenerator {
	return &GUIDGenerator{}
}

// Next генерирует следующий GUID указанного типа.
// Thread-safe через atomic increment.
func (g *GUIDGenerator) Next(t ObjectType) GUID {
	return MakeGUID(t, g.counters[t].Add(1))
}
