package wiredto

import "encoding/json"

// Envelope frames every event on the wire, both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound event types (client -> server).
const (
	TypeJoinRoom             = "joinRoom"
	TypeRejoin               = "rejoin"
	TypeRequestTimeSync      = "requestTimeSync"
	TypeMove                 = "move"
	TypeAssignHiddenPiece    = "assignHiddenPiece"
	TypeRevealPiece          = "revealPiece"
	TypeRelocateMarkedSquare = "relocateMarkedSquare"
	TypeCaptureMarkedPiece   = "captureMarkedPiece"
	TypeScoreGoal            = "scoreGoal"
	TypeCheckmated           = "checkmated"
	TypeDrawGame             = "drawGame"
	TypeTimeOut              = "timeOut"
	TypeResign               = "resign"
	TypeDrawRequest          = "drawRequest"
	TypeDrawDeclined         = "drawDeclined"
	TypeSendChat             = "sendChat"
	TypeUpdateDisplayName    = "updateDisplayName"
	TypeUpdateTime           = "updateTime"
	TypeEnqueueForVariant    = "enqueueForVariant"
	TypeLeaveRoom            = "leaveRoom"
	TypeRequestEngineMove    = "requestEngineMove"
)

// Outbound event types (server -> client).
const (
	TypeAssignedRole    = "assignedRole"
	TypeBoardState      = "boardState"
	TypeMoveApplied     = "moveApplied"
	TypeLastMoveSquares = "lastMoveSquares"
	TypeVariantState    = "variantState"
	TypePlayersInfo     = "playersInfo"
	TypeTimeSync        = "timeSync"
	TypeTimeUpdate      = "timeUpdate"
	TypeChatMessage     = "chatMessage"
	TypeChatHistory     = "chatHistory"
	TypeGameOver        = "gameOver"
	TypeMustRefresh     = "mustRefresh"
	TypeDrawOffered     = "drawOffered"
	TypePairedRoomID    = "pairedRoomId"
)

type JoinRoom struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type Rejoin struct {
	RoomID      string `json:"roomId"`
	ClaimedRole string `json:"claimedRole"`
	DisplayName string `json:"displayName"`
}

type RequestTimeSync struct {
	RoomID string `json:"roomId"`
}

type Move struct {
	RoomID      string `json:"roomId"`
	NewPosition string `json:"newPosition"`
	From        string `json:"from"`
	To          string `json:"to"`
}

type AssignHiddenPiece struct {
	RoomID  string `json:"roomId"`
	Index   int    `json:"index"`
	IsWhite bool   `json:"isWhite"`
}

type RevealPiece struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type RelocateMarkedSquare struct {
	RoomID    string `json:"roomId"`
	Color     string `json:"color"`
	NewSquare string `json:"newSquare"`
}

type CaptureMarkedPiece struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type ScoreGoal struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type Checkmated struct {
	RoomID      string `json:"roomId"`
	WinnerColor string `json:"winnerColor"`
}

type DrawGame struct {
	RoomID string `json:"roomId"`
}

type TimeOut struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type Resign struct {
	RoomID string `json:"roomId"`
}

type DrawRequest struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type DrawDeclined struct {
	RoomID string `json:"roomId"`
	Color  string `json:"color"`
}

type SendChat struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type UpdateDisplayName struct {
	RoomID      string `json:"roomId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

type UpdateTime struct {
	RoomID         string `json:"roomId"`
	WhiteRemaining int64  `json:"whiteRemaining"` // milliseconds
	BlackRemaining int64  `json:"blackRemaining"`
	LastMoveAt     int64  `json:"lastMoveAt"` // unix millis
}

type EnqueueForVariant struct {
	Variant string `json:"variant"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type RequestEngineMove struct {
	RoomID string `json:"roomId"`
}

type AssignedRole struct {
	Role string `json:"role"`
}

type BoardState struct {
	Position string `json:"position"`
}

type MoveApplied struct {
	Position string `json:"position"`
}

type LastMoveSquares struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type VariantState struct {
	MarkedSquareWhite string `json:"markedSquareWhite"`
	MarkedSquareBlack string `json:"markedSquareBlack"`
	PhaseWhite        string `json:"phaseWhite"`
	PhaseBlack        string `json:"phaseBlack"`
}

type PlayersInfo struct {
	WhiteDisplayName string `json:"whiteDisplayName"`
	BlackDisplayName string `json:"blackDisplayName"`
}

type TimeSync struct {
	WhiteRemaining int64  `json:"whiteRemaining"`
	BlackRemaining int64  `json:"blackRemaining"`
	LastMoveAt     int64  `json:"lastMoveAt"`
	ToMove         string `json:"toMove"`
}

type ChatMessage struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Audience  string `json:"audience"`
}

type ChatHistory struct {
	Messages []ChatMessage `json:"messages"`
}

type GameOver struct {
	Message string `json:"message"`
}

type PairedRoomID struct {
	RoomID string `json:"roomId"`
}

// Event builds an envelope with a marshaled payload. Marshal errors are
// impossible for the fixed payload types above, so they are swallowed.
func Event(typ string, payload any) Envelope {
	if payload == nil {
		return Envelope{Type: typ}
	}
	raw, _ := json.Marshal(payload)
	return Envelope{Type: typ, Data: raw}
}
