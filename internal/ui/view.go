package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/presenter"
)

const (
	boardSide = 3

	pageBoard = "board"
	pageEnded = "ended"

	buttonPlayAgain = "Play again"
	buttonQuit      = "Quit"

	helpText = "arrows/enter: play   r: new game   q: quit"
)

// BoardView draws the game in a terminal. Render calls may come from any goroutine;
// they are queued onto the tview event loop.
type BoardView struct {
	app    *tview.Application
	pages  *tview.Pages
	table  *tview.Table
	status *tview.TextView
	modal  *tview.Modal

	onSelect func(index int)
	onReset  func()
}

func NewBoardView(app *tview.Application) *BoardView {
	view := &BoardView{
		app:      app,
		pages:    tview.NewPages(),
		table:    tview.NewTable(),
		status:   tview.NewTextView(),
		modal:    tview.NewModal(),
		onSelect: func(int) {},
		onReset:  func() {},
	}

	view.table.SetBorders(true).SetSelectable(true, true)
	view.table.SetSelectedFunc(func(row, column int) {
		index := indexAt(row, column)
		go view.onSelect(index)
	})
	view.fillBoard(entity.Board{})

	view.status.SetTextAlign(tview.AlignCenter)

	help := tview.NewTextView().SetTextAlign(tview.AlignCenter).SetText(helpText)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(view.status, 1, 0, false).
		AddItem(view.table, 2*boardSide+1, 0, true).
		AddItem(help, 1, 0, false)

	view.modal.AddButtons([]string{buttonPlayAgain, buttonQuit}).
		SetDoneFunc(func(_ int, label string) {
			view.hideEnded()

			switch label {
			case buttonPlayAgain:
				go view.onReset()
			case buttonQuit:
				view.app.Stop()
			}
		})

	view.pages.
		AddPage(pageBoard, layout, true, true).
		AddPage(pageEnded, view.modal, true, false)

	view.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			view.app.Stop()
			return nil
		case 'r':
			view.hideEnded()
			go view.onReset()
			return nil
		}

		return event
	})

	return view
}

// Bind - routes cell selections and reset requests. Handlers run on their own goroutine.
func (that *BoardView) Bind(onSelect func(index int), onReset func()) {
	that.onSelect = onSelect
	that.onReset = onReset
}

func (that *BoardView) Root() tview.Primitive {
	return that.pages
}

func (that *BoardView) RenderBoard(board entity.Board) {
	that.app.QueueUpdateDraw(func() {
		that.fillBoard(board)

		if board.Count(entity.EmptyCell) == entity.BoardSize {
			that.hideEnded()
		}
	})
}

func (that *BoardView) RenderStatus(banner string) {
	that.app.QueueUpdateDraw(func() {
		that.status.SetText(banner)
	})
}

func (that *BoardView) OnGameEnded(winner entity.Player) {
	that.app.QueueUpdateDraw(func() {
		that.modal.SetText(presenter.EndedBanner(winner))
		that.pages.ShowPage(pageEnded)
		that.app.SetFocus(that.modal)
	})
}

func (that *BoardView) fillBoard(board entity.Board) {
	for index, cell := range board {
		row, column := cellPosition(index)

		that.table.SetCell(row, column, tview.NewTableCell(cellText(cell)).
			SetAlign(tview.AlignCenter).
			SetExpansion(1).
			SetTextColor(cellColor(cell)))
	}
}

func (that *BoardView) hideEnded() {
	that.pages.HidePage(pageEnded)
	that.app.SetFocus(that.table)
}

func cellPosition(index int) (int, int) {
	return index / boardSide, index % boardSide
}

func indexAt(row, column int) int {
	return row*boardSide + column
}

func cellText(cell entity.Cell) string {
	if cell == entity.EmptyCell {
		return "   "
	}

	return " " + string(cell) + " "
}

func cellColor(cell entity.Cell) tcell.Color {
	switch cell {
	case entity.CellX:
		return tcell.ColorRed
	case entity.CellO:
		return tcell.ColorDodgerBlue
	default:
		return tcell.ColorDefault
	}
}
