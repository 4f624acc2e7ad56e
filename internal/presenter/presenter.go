package presenter

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

// Presentation is what the status line and the ended-game dialog show for a state.
type Presentation struct {
	Banner          string
	EndedWithWinner entity.Player
	EndedInDraw     bool
}

// Present - maps a state to its banner. No state is kept.
func Present(state entity.GameState) Presentation {
	switch {
	case state.Status.IsWon():
		return Presentation{
			Banner:          EndedBanner(state.Status.Winner),
			EndedWithWinner: state.Status.Winner,
		}
	case state.Status.IsDraw():
		return Presentation{
			Banner:      EndedBanner(entity.NoPlayer),
			EndedInDraw: true,
		}
	default:
		return Presentation{
			Banner: fmt.Sprintf("Current Turn: %s", state.Turn),
		}
	}
}

// EndedBanner - the banner of a finished game; NoPlayer means a draw.
func EndedBanner(winner entity.Player) string {
	if winner == entity.NoPlayer {
		return "It's a Draw!"
	}

	return fmt.Sprintf("Player %s Wins!", winner)
}

// EndTracker fires once when a game goes from in progress to finished. Showing an
// already finished game again, or the very first state, does not fire.
type EndTracker struct {
	seen bool
	last entity.Status
}

// Observe - records status and reports whether it is the game-ended edge.
func (that *EndTracker) Observe(status entity.Status) bool {
	fired := that.seen && that.last.IsInProgress() && status.IsTerminal()

	that.seen = true
	that.last = status

	return fired
}
