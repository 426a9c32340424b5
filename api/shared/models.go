/* models.go
 * This file contain the structs that are shared between sub packages
 * Authors: Zachary Bower
 */

package shared

// User is a chat account issuing commands
type User struct {
	UserID   string
	Username string
}

// Player is a rostered player with the name shown in chat and on the game server
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
