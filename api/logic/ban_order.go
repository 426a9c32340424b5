/* ban_order.go
 * Contains the map veto order
 * Authors: Zachary Bower
 */

package logic

import "inhouse-bot/api/store"

// BanOrder is the veto sequence for the seven map pool. Team 1 bans first and last
var BanOrder = []store.TeamSide{
	store.Team1,
	store.Team1,
	store.Team2,
	store.Team2,
	store.Team1,
	store.Team2,
}

// BanTurn returns which team bans at the given ban index. Pools larger than the fixed order keep alternating,
// starting with team 1
func BanTurn(index int) store.TeamSide {
	if index < len(BanOrder) {
		return BanOrder[index]
	}
	if (index-len(BanOrder))%2 == 0 {
		return store.Team1
	}
	return store.Team2
}
