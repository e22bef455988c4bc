// +build integration

package mongo

import (
	"testing"

	"github.com/marketgame/bridge/lib/store"
)

// This test requires an available MongoDB server at localhost:27017.
var uri string = "mongodb://localhost:27017"

func TestNewMongo(t *testing.T) {
	m, err := New(uri)
	if err != nil {
		t.Errorf("err:%e", err)
	}
	err = m.CloseMongo()
	if err != nil {
		t.Errorf("err:%e", err)
	}
}

func TestNames(t *testing.T) {
	var addr, name string = "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4", "alice"

	m, err := New(uri)
	if err != nil {
		t.Fatalf("err:%e", err)
	}
	defer m.CloseMongo()

	if err = m.SetName(addr, name); err != nil {
		t.Errorf("SetName - err:%e", err)
	}
	// setting again overwrites, never duplicates
	if err = m.SetName(addr, "alice2"); err != nil {
		t.Errorf("SetName - err:%e", err)
	}

	names, err := m.Names()
	if err != nil {
		t.Errorf("Names - err:%e", err)
	} else if names[addr] != "alice2" {
		t.Errorf("expected alice2 for %s but got:%+v\n", addr, names)
	}
}

func TestGameCheckpoint(t *testing.T) {
	var g store.Game = store.Game{
		Price:      55,
		StartBlock: 100,
		EndBlock:   400,
		Height:     208,
	}

	m, err := New(uri)
	if err != nil {
		t.Fatalf("err:%e", err)
	}
	defer m.CloseMongo()

	if err := m.SaveGame(g); err != nil {
		t.Errorf("SaveGame - err:%e", err)
	}

	if g2, err2 := m.LoadGame(); err2 != nil || g2.Price != 55 || g2.EndBlock != 400 || g2.Height != 208 {
		t.Errorf("LoadGame - err:%e, g2:%+v", err2, g2)
	}
}
