package extsimple

// Entry describes one user-visible file of the directory.
type Entry struct {
	Slot   int
	Name   string
	Inode  uint16
	Size   uint32
	Blocks []uint16
}

// Find returns the directory slot of the first in-use entry whose name
// matches exactly. The self entry never matches.
func (img *Image) Find(name string) (int, bool) {
	for slot := range img.dir {
		e := &img.dir[slot]
		if !e.inUse() || e.isSelf() {
			continue
		}
		if e.name() == name {
			return slot, true
		}
	}
	return -1, false
}

// List returns every user-visible entry in slot order.
func (img *Image) List() []Entry {
	var entries []Entry
	for slot := range img.dir {
		e := &img.dir[slot]
		if !e.inUse() || e.isSelf() {
			continue
		}
		entries = append(entries, img.entryAt(slot))
	}
	return entries
}

// Stat returns the entry for a single name.
func (img *Image) Stat(name string) (Entry, error) {
	slot, ok := img.Find(name)
	if !ok {
		return Entry{}, errNotFound(name)
	}
	return img.entryAt(slot), nil
}

func (img *Image) entryAt(slot int) Entry {
	e := &img.dir[slot]
	n := &img.inodes[e.Inode]
	return Entry{
		Slot:   slot,
		Name:   e.name(),
		Inode:  e.Inode,
		Size:   n.Size,
		Blocks: n.blockList(),
	}
}

// freeSlot returns the lowest unused directory slot.
func (img *Image) freeSlot() (int, bool) {
	for slot := range img.dir {
		if !img.dir[slot].inUse() {
			return slot, true
		}
	}
	return -1, false
}
