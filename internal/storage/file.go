package storage

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strings"
)

// banner is the fixed text written at the top of every storage file.
const banner = "# homenet-pa prefix storage -- generated file, hand edits are not preserved\n"

type fileEntry struct {
	linkName string
	prefix   netip.Prefix
}

// readFile parses a storage file. Malformed lines are skipped (logged by
// the caller via the returned error, which reports whether at least one
// line was rejected) but do not abort parsing of the remainder.
func readFile(path string) ([]fileEntry, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []fileEntry
	var rejected int
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fe, ok := parseLine(line)
		if !ok {
			rejected++
			continue
		}
		entries = append(entries, fe)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("storage: read %s: %w", path, err)
	}
	if rejected > 0 {
		return entries, fmt.Errorf("storage: %d malformed line(s) in %s", rejected, path)
	}
	return entries, nil
}

// parseLine parses one "prefix <link-name> <address>/<len>" line. The
// address/len may be in IPv4 dotted form, stored as the mapped prefix
// with the length shifted up by 96.
func parseLine(line string) (fileEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "prefix" {
		return fileEntry{}, false
	}
	p, err := parsePrefixText(fields[2])
	if err != nil {
		return fileEntry{}, false
	}
	return fileEntry{linkName: fields[1], prefix: p}, true
}

// parsePrefixText accepts both IPv6 text form and the IPv4 dotted form
// "a.b.c.d/p", which round-trips as an IPv4-mapped /p+96 -- see
// formatPrefixText.
func parsePrefixText(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("storage: bad prefix %q: %w", s, err)
	}
	if p.Addr().Is4() {
		// As16 yields the ::ffff:a.b.c.d mapped representation.
		mapped := netip.AddrFrom16(p.Addr().As16())
		return mapped.Prefix(p.Bits() + 96)
	}
	return p, nil
}

// formatPrefixText renders p, writing an IPv4-mapped prefix in dotted
// form with its length shifted back down by 96.
func formatPrefixText(p netip.Prefix) string {
	if p.Addr().Is4In6() {
		v4 := p.Addr().Unmap()
		return fmt.Sprintf("%s/%d", v4, p.Bits()-96)
	}
	return p.String()
}

// writeFile emits entries oldest-to-newest so a subsequent
// readFile()+touch sequence MRU-orders them correctly.
func writeFile(path string, entries []fileEntry) error {
	if path == "" {
		return nil
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(banner); err != nil {
		f.Close()
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "prefix %s %s\n", e.linkName, formatPrefixText(e.prefix)); err != nil {
			f.Close()
			return fmt.Errorf("storage: write %s: %w", tmp, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("storage: flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: rename %s: %w", tmp, err)
	}
	return nil
}
