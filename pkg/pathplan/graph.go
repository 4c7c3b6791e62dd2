package pathplan

import (
	"fmt"
	"strings"
)

// cycleTempPrefix names the temporary paths inserted to linearize rename
// cycles. The executor treats them as ordinary destination paths; the final
// rename of each cycle consumes them, so none survive a completed plan.
const cycleTempPrefix = ".janus-tmp-"

func isCycleTemp(relPath string) bool {
	return strings.HasPrefix(relPath, cycleTempPrefix)
}

// orderRenames arranges rename actions so that every rename runs after the
// rename that vacates its target. The dependency structure is a functional
// graph (each rename depends on at most one other, because donor paths are
// unique), so it decomposes into chains and simple cycles.
//
// Chains are emitted in reverse-topological order. Each cycle is broken by
// copying one member's donor file to a temporary path and rewriting that
// member to rename the temporary instead; the cycle then unrolls as a chain.
func orderRenames(renames []Action) []Action {
	n := len(renames)
	if n == 0 {
		return nil
	}

	byFrom := make(map[string]int, n)
	for i := range renames {
		byFrom[renames[i].From] = i
	}

	// dep[i] is the rename that must complete before renames[i] may
	// overwrite its target, or -1 when the target path is free.
	dep := make([]int, n)
	for i := range renames {
		if j, ok := byFrom[renames[i].Rel]; ok && j != i {
			dep[i] = j
		} else {
			dep[i] = -1
		}
	}

	const (
		unvisited = iota
		visiting
		emitted
	)
	state := make([]uint8, n)
	out := make([]Action, 0, n)
	tempCounter := 0

	// Iterative DFS with a visiting marker; indices only, no node structs.
	for i := range renames {
		if state[i] != unvisited {
			continue
		}
		stack := []int{}
		j := i
		for {
			state[j] = visiting
			stack = append(stack, j)
			k := dep[j]

			if k == -1 || state[k] == emitted {
				// Dependency chain grounded: emit deepest-first.
				for s := len(stack) - 1; s >= 0; s-- {
					out = append(out, renames[stack[s]])
					state[stack[s]] = emitted
				}
				break
			}
			if state[k] == visiting {
				// Found a cycle: it spans stack[pos:] where stack[pos] == k.
				pos := 0
				for stack[pos] != k {
					pos++
				}
				out = append(out, breakCycle(renames, stack[pos:], &tempCounter)...)
				for _, c := range stack[pos:] {
					state[c] = emitted
				}
				// The prefix depends on cycle members, deepest first.
				for s := pos - 1; s >= 0; s-- {
					out = append(out, renames[stack[s]])
					state[stack[s]] = emitted
				}
				break
			}
			j = k
		}
	}
	return out
}

// breakCycle linearizes one rename cycle. The member with the smallest
// donor path has its file parked at a temporary path first; the remaining
// members then run in vacated order, and the parked file is renamed last.
func breakCycle(renames []Action, cycle []int, tempCounter *int) []Action {
	byRel := make(map[string]int, len(cycle))
	saved := cycle[0]
	for _, c := range cycle {
		byRel[renames[c].Rel] = c
		if renames[c].From < renames[saved].From {
			saved = c
		}
	}

	savedAction := renames[saved]
	temp := fmt.Sprintf("%s%d", cycleTempPrefix, *tempCounter)
	*tempCounter++

	out := make([]Action, 0, len(cycle)+1)
	out = append(out, Action{
		Op:   OpLocalCopy,
		Rel:  temp,
		From: savedAction.From,
		Size: savedAction.Size,
		Hash: savedAction.Hash,
		Mode: 0600,
	})

	// Walk the cycle starting at the rename that lands on the parked path.
	cur := byRel[savedAction.From]
	for cur != saved {
		out = append(out, renames[cur])
		cur = byRel[renames[cur].From]
	}
	converted := savedAction
	converted.From = temp
	out = append(out, converted)
	return out
}
