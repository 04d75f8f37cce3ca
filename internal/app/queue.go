package app

import (
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// MatchQueue holds per-floor waiting lists of matchmaking tickets.
// Tickets pair floor-exact, oldest first; selection and removal of both
// tickets happen under one lock so concurrent TryMatch calls can never
// claim the same opponent.
type MatchQueue struct {
	mu      sync.Mutex
	byFloor map[int][]domain.MatchTicket
}

func NewMatchQueue() *MatchQueue {
	return &MatchQueue{byFloor: make(map[int][]domain.MatchTicket)}
}

// Enqueue adds a ticket for the player, replacing any ticket they already
// hold on any floor.
func (q *MatchQueue) Enqueue(playerID string, floor int) domain.MatchTicket {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(playerID)
	ticket := domain.MatchTicket{PlayerID: playerID, Floor: floor, EnqueuedAt: time.Now()}
	q.byFloor[floor] = append(q.byFloor[floor], ticket)
	return ticket
}

// TryMatch scans the requester's floor for the oldest ticket belonging to
// someone else. On a hit both tickets are removed atomically and the
// opponent's ticket is returned. A miss leaves the requester's own ticket
// in place so a later arrival can find it; a requester whose own ticket is
// already gone (claimed by a concurrent match) never pairs.
func (q *MatchQueue) TryMatch(playerID string, floor int) (domain.MatchTicket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tickets := q.byFloor[floor]
	self := -1
	opponent := -1
	for i, t := range tickets {
		if t.PlayerID == playerID {
			self = i
		} else if opponent == -1 {
			opponent = i
		}
	}
	if self == -1 || opponent == -1 {
		return domain.MatchTicket{}, false
	}

	matched := tickets[opponent]
	remaining := make([]domain.MatchTicket, 0, len(tickets)-2)
	for i, t := range tickets {
		if i != self && i != opponent {
			remaining = append(remaining, t)
		}
	}
	if len(remaining) == 0 {
		delete(q.byFloor, floor)
	} else {
		q.byFloor[floor] = remaining
	}
	return matched, true
}

// Requeue restores a previously claimed ticket with its original
// enqueue time, reinserting it at its age-ordered position so the
// player keeps their place in line.
func (q *MatchQueue) Requeue(ticket domain.MatchTicket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(ticket.PlayerID)
	tickets := q.byFloor[ticket.Floor]
	at := len(tickets)
	for i, t := range tickets {
		if ticket.EnqueuedAt.Before(t.EnqueuedAt) {
			at = i
			break
		}
	}
	tickets = append(tickets, domain.MatchTicket{})
	copy(tickets[at+1:], tickets[at:])
	tickets[at] = ticket
	q.byFloor[ticket.Floor] = tickets
}

// Leave removes any ticket held by the player, on any floor. Absent
// tickets are not an error.
func (q *MatchQueue) Leave(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(playerID)
}

// Waiting reports how many tickets are queued on a floor.
func (q *MatchQueue) Waiting(floor int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byFloor[floor])
}

func (q *MatchQueue) removeLocked(playerID string) {
	for floor, tickets := range q.byFloor {
		for i, t := range tickets {
			if t.PlayerID == playerID {
				tickets = append(tickets[:i], tickets[i+1:]...)
				if len(tickets) == 0 {
					delete(q.byFloor, floor)
				} else {
					q.byFloor[floor] = tickets
				}
				return
			}
		}
	}
}
