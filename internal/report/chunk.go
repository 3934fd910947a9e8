package report

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Smallest possible "*Part i/N*" continuation header; the room actually
// reserved grows with the part count.
const minPartHeaderRoom = len("*Part 1/9*\n\n")

const truncationNote = "… (truncated)"

func partHeaderRoom(parts int) int {
	return len(fmt.Sprintf("*Part %d/%d*\n\n", parts, parts))
}

// Chunks splits the rendered report into payloads of at most limit bytes
// for size-limited channels. Splits happen at block boundaries (one PR
// entry is one block) when possible; a block larger than the limit is
// split at line boundaries instead. A limit <= 0 means unlimited and
// yields exactly one payload. The statistics footer always shares its
// chunk with at least one content block, and no payload is ever empty.
func (r *Report) Chunks(limit int) []string {
	full := r.Render()
	if limit <= 0 || len(full) <= limit {
		return []string{full}
	}

	blocks := r.blocks()
	var footer string
	if r.Stats.TotalPRs > 0 {
		footer = blocks[len(blocks)-1]
		blocks = blocks[:len(blocks)-1]
	}

	// The header length depends on the part count, and the room reserved
	// for it changes the part count. Repack until the reservation covers
	// the headers the packing actually needs.
	headroom := minPartHeaderRoom
	for {
		budget := limit - headroom
		if budget < 1 {
			budget = limit
		}
		chunks := packBlocks(blocks, footer, budget)
		if len(chunks) <= 1 {
			return chunks
		}
		if need := partHeaderRoom(len(chunks)); need > headroom {
			headroom = need
			continue
		}
		out := make([]string, len(chunks))
		for i, c := range chunks {
			out[i] = fmt.Sprintf("*Part %d/%d*\n\n%s", i+1, len(chunks), c)
		}
		return out
	}
}

// packBlocks greedily packs blocks into chunks of at most budget bytes,
// keeping the footer attached to the final content block.
func packBlocks(blocks []string, footer string, budget int) []string {
	var chunks []string
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, blockSeparator))
			cur = nil
			curLen = 0
		}
	}
	add := func(piece string) {
		need := len(piece)
		if len(cur) > 0 {
			need += len(blockSeparator)
		}
		if len(cur) > 0 && curLen+need > budget {
			flush()
			need = len(piece)
		}
		cur = append(cur, piece)
		curLen += need
	}

	for _, block := range blocks {
		for _, piece := range splitText(block, budget) {
			add(piece)
		}
	}

	if footer != "" {
		fits := func() bool {
			return curLen+len(blockSeparator)+len(footer) <= budget
		}
		if !fits() && len(cur) > 1 {
			// Carry the last entry into a fresh chunk so the footer
			// is not emitted on its own.
			last := cur[len(cur)-1]
			cur = cur[:len(cur)-1]
			flush()
			cur = []string{last}
			curLen = len(last)
		}
		if !fits() && len(cur) == 1 {
			// Shrink the final block until the footer fits next to it,
			// so the footer never travels alone.
			room := budget - len(footer) - len(blockSeparator)
			if room > 0 {
				parts := splitText(cur[0], room)
				chunks = append(chunks, parts[:len(parts)-1]...)
				cur = []string{parts[len(parts)-1]}
				curLen = len(cur[0])
			}
		}
		add(footer)
	}
	flush()
	return chunks
}

// splitText cuts text into pieces no longer than max at line boundaries.
// Cuts that would leave an unterminated code span or markdown link in a
// piece are moved back to an earlier boundary when one exists. A single
// line longer than max is truncated with a note, its overflow dropped.
func splitText(text string, max int) []string {
	var pieces []string
	for len(text) > max {
		cut := strings.LastIndexByte(text[:max+1], '\n')
		if cut <= 0 {
			pieces = append(pieces, truncateLine(text, max))
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				return pieces
			}
			text = strings.TrimLeft(text[nl:], "\n")
			continue
		}
		if !balancedSpans(text[:cut]) {
			for c := strings.LastIndexByte(text[:cut], '\n'); c > 0; c = strings.LastIndexByte(text[:c], '\n') {
				if balancedSpans(text[:c]) {
					cut = c
					break
				}
			}
		}
		if piece := strings.TrimRight(text[:cut], "\n"); piece != "" {
			pieces = append(pieces, piece)
		}
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// balancedSpans reports whether s closes every code span and link it
// opens, which makes it safe to end a chunk after s.
func balancedSpans(s string) bool {
	return strings.Count(s, "`")%2 == 0 &&
		strings.Count(s, "[") == strings.Count(s, "]")
}

func truncateLine(line string, max int) string {
	if max <= len(truncationNote) {
		return line[:max]
	}
	cut := max - len(truncationNote)
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + truncationNote
}
