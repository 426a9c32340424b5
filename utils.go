/* utils.go
 * Utility functions used across the application
 * Authors: Zachary Bower
 */

package main

import (
	"fmt"
	"strings"
)

// parseToggle converts an on/off flag value into a boolean for comparisons
// Preconditions: Receives string containing true/false, yes/no, on/off or 1/0 (case insensitive)
// Postconditions: Returns boolean value or an error if the string is none of those
func parseToggle(str string) (bool, error) {
	str = strings.TrimSpace(str)
	str = strings.ToLower(str)

	switch str {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean string %q", str)
}
