package ui

// Key binding constants used in handleKey.
const (
	KeyRecord      = "r"
	KeyStop        = "s"
	KeyNext        = "n"
	KeySkip        = "k"
	KeyPlayPrompt  = "p"
	KeyListen      = "l"
	KeyPlayWord    = "w"
	KeyRetryPrompt = "t"
	KeyEditPrompt  = "e"
	KeyQuit        = "q"
	KeyCtrlC       = "ctrl+c"
	KeyEnter       = "enter"
	KeyEsc         = "esc"
	KeyBackspace   = "backspace"
)
