package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

const selectedKey = "selected_tab"

// DiskvPersister keeps the selection as a small file under a workspace
// directory.
type DiskvPersister struct {
	d *diskv.Diskv
}

func NewDiskvPersister(dir string) *DiskvPersister {
	return &DiskvPersister{d: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 4 * 1024,
	})}
}

func (p *DiskvPersister) LoadSelected() (int64, bool, error) {
	if !p.d.Has(selectedKey) {
		return 0, false, nil
	}
	raw, err := p.d.Read(selectedKey)
	if err != nil {
		return 0, false, fmt.Errorf("read selection: %w", err)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || id <= 0 {
		// A corrupt value is treated as no selection.
		return 0, false, nil
	}
	return id, true, nil
}

func (p *DiskvPersister) SaveSelected(id int64) error {
	if err := p.d.Write(selectedKey, []byte(strconv.FormatInt(id, 10))); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}

func (p *DiskvPersister) ClearSelected() error {
	if !p.d.Has(selectedKey) {
		return nil
	}
	return p.d.Erase(selectedKey)
}

// MemoryPersister keeps the selection in memory only.
type MemoryPersister struct {
	mu sync.Mutex
	id int64
}

func NewMemoryPersister() *MemoryPersister { return &MemoryPersister{} }

func (p *MemoryPersister) LoadSelected() (int64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, p.id > 0, nil
}

func (p *MemoryPersister) SaveSelected(id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	return nil
}

func (p *MemoryPersister) ClearSelected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = 0
	return nil
}
