package geminiwebapi

// The upstream wire format is positional and undeclared: the server never
// ships a schema, only nested arrays whose meaning is fixed by index. Every
// position this client consumes is named here, request side as array indexes
// and response side as gjson paths, so a shift in the upstream layout is a
// one-file fix.
//
// Schema observed as of 2025-08.

// Request-side slots of the turn envelope [content, _, lineage, ...].
const (
	idxTurnContent = 0
	idxTurnLineage = 2

	// The gem id lands 17 positions after the lineage slot; the 16 slots in
	// between are reserved upstream and always sent as null.
	idxTurnGem = 19
)

// Content-envelope slots, used only when attachments are present:
// [prompt, 0, null, [[[uploadRef], fileName], ...]].
const (
	idxContentPrompt      = 0
	idxContentMode        = 1
	idxContentAttachments = 3
)

// Response-side paths, resolved against the re-parsed payload string found at
// element 2 of each part of the outer array (line index 2 of the raw body).
const (
	pathPartPayload = "2"
	pathPartTag     = "@reverse.0"

	// A part is the body when this element is truthy.
	pathBodySentinel = "4"

	pathBodyLineage    = "1"
	pathBodyCandidates = "4"

	// Relative to one candidate entry.
	pathCandidateRCID     = "0"
	pathCandidateText     = "1.0"
	pathCandidateCardAlt  = "22.0"
	pathCandidateThoughts = "37.0.0"

	pathWebImageList  = "12.1"
	pathWebImageURL   = "0.0.0"
	pathWebImageTitle = "7.0"
	pathWebImageAlt   = "0.4"

	// Marker that generated images exist for a candidate, and (in a later
	// part) the image list itself.
	pathGeneratedList = "12.7.0"
	pathGeneratedURL  = "0.3.3"
	pathGeneratedSeq  = "3.6"
	pathGeneratedAlts = "3.5"

	// Numeric rejection code, read from the first part of the outer array
	// when no body part exists.
	pathErrorCode = "0.5.2.0.1.0"
)

// Gem listing batch-RPC: method id and paths into each reply part.
const (
	rpcGemList = "CNgdBe"

	pathGemList        = "2"
	pathGemID          = "0"
	pathGemName        = "1.0"
	pathGemDescription = "1.1"
	pathGemPrompt      = "2"
	pathGemPromptText  = "2.0"
)

// Generated-image lookups scan forward from the body part. The outer array is
// finite, but cap the walk so one pathological frame cannot dominate a call.
const maxImageScanParts = 64
