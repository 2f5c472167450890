package knowledge

import "strings"

// DefaultChunkSize is the target chunk length in bytes.
const DefaultChunkSize = 5000

// boundaryFraction is how far into the window a boundary must sit to be used.
// Boundaries in the first 30% would produce tiny chunks, so they are ignored.
const boundaryFraction = 0.3

// SplitText splits text into chunks of at most chunkSize bytes, preferring to
// cut at natural boundaries. Boundary preference, in order:
//
//  1. a fenced code block delimiter (```)
//  2. a paragraph break (\n\n)
//  3. a sentence break (". "), keeping the period in the current chunk
//
// A boundary is only used when it lies past 30% of the window; otherwise the
// chunk is cut hard at chunkSize. Chunks are whitespace-trimmed and empty
// chunks are dropped. Every call makes forward progress, so SplitText
// terminates on any input.
func SplitText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []string
	minBoundary := int(float64(chunkSize) * boundaryFraction)
	start := 0

	for start < len(text) {
		end := start + chunkSize

		if end >= len(text) {
			if chunk := strings.TrimSpace(text[start:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		window := text[start:end]

		if fence := strings.LastIndex(window, "```"); fence != -1 && fence > minBoundary {
			end = start + fence
		} else if brk := strings.LastIndex(window, "\n\n"); brk > minBoundary {
			end = start + brk
		} else if period := strings.LastIndex(window, ". "); period > minBoundary {
			end = start + period + 1
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		// end can equal start when a fence sits exactly at the window start;
		// force progress so the loop terminates.
		start = max(start+1, end)
	}

	return chunks
}
