package ptnode

import (
	"errors"
	"fmt"
	"strings"
)

var errStopIteration = errors.New("stop")

// FindWord returns the live terminal record spelling word, searching from
// the root array at root. Deleted records are ignored.
func FindWord(r *Reader, root Pos, word string) (*Params, error) {
	arrayPos := root
	rest := word
	for depth := 0; depth <= MaxWordLength; depth++ {
		var match *Params
		err := r.ForEachNode(arrayPos, func(p *Params) error {
			if !p.IsDeleted() && strings.HasPrefix(rest, p.Label) {
				match = p
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			return nil, err
		}
		if match == nil {
			break
		}
		rest = rest[len(match.Label):]
		if rest == "" {
			if match.IsTerminal() {
				return match, nil
			}
			break
		}
		if !match.HasChildren() {
			break
		}
		arrayPos = match.ChildrenPos
	}
	return nil, fmt.Errorf("%w: %q", ErrWordNotFound, word)
}

// WordAt reconstructs the word spelled by the path from the root to the
// record at headPos, following parent positions.
func WordAt(r *Reader, headPos Pos) (string, error) {
	var labels []string
	pos := headPos
	for pos != NotADictPos {
		if len(labels) > MaxWordLength {
			return "", fmt.Errorf("%w: parent chain from %d too long", ErrBadRecord, headPos)
		}
		p, err := r.ReadNode(pos)
		if err != nil {
			return "", err
		}
		labels = append(labels, p.Label)
		pos = p.ParentPos
	}
	var sb strings.Builder
	for i := len(labels) - 1; i >= 0; i-- {
		sb.WriteString(labels[i])
	}
	return sb.String(), nil
}

// ReadWords returns the live words of the trie rooted at root, in trie
// order, with their bigram targets resolved to words. The result can be
// given back to Build.
func ReadWords(r *Reader, root Pos) ([]WordEntry, error) {
	var words []WordEntry
	var walk func(arrayPos Pos, prefix string, depth int) error
	walk = func(arrayPos Pos, prefix string, depth int) error {
		if depth > MaxWordLength {
			return fmt.Errorf("%w: trie deeper than %d", ErrBadRecord, MaxWordLength)
		}
		return r.ForEachNode(arrayPos, func(p *Params) error {
			if p.IsDeleted() {
				return nil
			}
			word := prefix + p.Label
			if p.IsTerminal() && p.Probability != NotAProbability {
				e := WordEntry{Word: word, Probability: p.Probability}
				for _, b := range p.Bigrams {
					target, err := WordAt(r, b.TargetPos)
					if err != nil {
						return err
					}
					e.Bigrams = append(e.Bigrams, BigramSpec{Word: target, Probability: b.Probability})
				}
				words = append(words, e)
			}
			if !p.HasChildren() {
				return nil
			}
			return walk(p.ChildrenPos, word, depth+1)
		})
	}
	if err := walk(root, "", 0); err != nil {
		return nil, err
	}
	return words, nil
}
