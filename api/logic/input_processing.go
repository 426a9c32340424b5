/* input_processing.go
 * Contains the logic for turning free-form user input into map names and player ids
 * Authors: Zachary Bower
 */

package logic

import (
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ResolveMapName matches user input against the map pool.
// Preconditions: receives the raw input (e.g. "mirage", "de_Mirage", "mirag") and the pool of valid map names
// Postconditions: returns the pool's spelling of the best match and true, or an empty string and false if nothing
// in the pool matches
func ResolveMapName(input string, pool []string) (string, bool) {
	lowerInput := strings.ToLower(strings.TrimSpace(input))
	if lowerInput == "" {
		return "", false
	}

	// Map lower case names back to the pool's spelling
	lookup := make(map[string]string)
	var poolLower []string
	for _, name := range pool {
		lower := strings.ToLower(name)
		lookup[lower] = name
		poolLower = append(poolLower, lower)
	}

	// Exact match, with or without the de_ prefix
	for _, candidate := range []string{lowerInput, "de_" + lowerInput} {
		if name, ok := lookup[candidate]; ok {
			return name, true
		}
	}

	fuzzyResults := fuzzy.RankFind(lowerInput, poolLower)
	if len(fuzzyResults) == 0 {
		return "", false
	}
	// Lowest distance is the best ranked match
	best := fuzzyResults[0]
	for _, r := range fuzzyResults[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return lookup[best.Target], true
}

// ResolvePlayer turns a pick argument into a player id. The argument can be the 1-based position in the list of
// available players or a player id
// Preconditions: receives the raw input and the players that can be picked, in display order
// Postconditions: returns the player id and true, or an empty string and false if the input matches nobody
func ResolvePlayer(input string, available []string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	for _, p := range available {
		if p == input {
			return p, true
		}
	}
	// Short numbers are positions, player ids are far longer
	if len(input) <= 2 {
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(available) {
			return available[n-1], true
		}
	}
	return "", false
}
