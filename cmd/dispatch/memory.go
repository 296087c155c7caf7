package main

import (
	"context"
	"fmt"

	"github.com/openclaw/dispatch/internal/config"
	"github.com/openclaw/dispatch/internal/memory"
)

// MemoryCmd inspects and edits tenant memory.
type MemoryCmd struct {
	Add    MemoryAddCmd    `cmd:"" help:"Store a note in a tenant's memory"`
	Search MemorySearchCmd `cmd:"" help:"Search a tenant's memory"`
	Forget MemoryForgetCmd `cmd:"" help:"Delete a note by id"`
}

// MemoryAddCmd stores one note.
type MemoryAddCmd struct {
	Content string `arg:"" help:"Note content"`
	Tenant  string `short:"t" default:"default" help:"Tenant namespace"`
	Source  string `help:"Where the note came from"`
	Config  string `short:"c" default:"dispatch.toml" help:"Config file path"`
}

// MemorySearchCmd queries one tenant namespace.
type MemorySearchCmd struct {
	Query  string `arg:"" help:"Search query"`
	Tenant string `short:"t" default:"default" help:"Tenant namespace"`
	Limit  int    `short:"n" default:"10" help:"Maximum results"`
	Config string `short:"c" default:"dispatch.toml" help:"Config file path"`
}

// MemoryForgetCmd removes one note.
type MemoryForgetCmd struct {
	ID     string `arg:"" help:"Note id to delete"`
	Config string `short:"c" default:"dispatch.toml" help:"Config file path"`
}

func openStore(configPath string) (*memory.BleveStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return memory.OpenBleve(cfg.Memory.Path)
}

func (c *MemoryAddCmd) Execute(ctx context.Context) error {
	store, err := openStore(c.Config)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Save(ctx, memory.Note{
		Tenant:  c.Tenant,
		Content: c.Content,
		Source:  c.Source,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func (c *MemorySearchCmd) Execute(ctx context.Context) error {
	store, err := openStore(c.Config)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Search(ctx, c.Tenant, c.Query, c.Limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.2f  %s  %s\n", r.Score, r.ID, r.Content)
	}
	return nil
}

func (c *MemoryForgetCmd) Execute(ctx context.Context) error {
	store, err := openStore(c.Config)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Delete(ctx, c.ID)
}
