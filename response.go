package geminiwebapi

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	reCardContent = regexp.MustCompile(`^http://googleusercontent\.com/card_content/\d+`)
	reGenContent  = regexp.MustCompile(`http://googleusercontent\.com/image_generation_content/\d+`)
)

// truthy mirrors the loose truthiness the upstream frontend relies on: null,
// false, 0, "", and empty containers all count as absent.
func truthy(r gjson.Result) bool {
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		if r.IsObject() {
			return len(r.Map()) > 0
		}
		return r.Raw != ""
	}
}

// parsePayload re-parses the JSON-encoded string payload carried at element 2
// of an outer-array part. Returns a non-existent Result when the part does
// not carry one.
func parsePayload(part gjson.Result) gjson.Result {
	payload := part.Get(pathPartPayload)
	if payload.Type != gjson.String {
		return gjson.Result{}
	}
	main := gjson.Parse(payload.String())
	if !main.IsArray() {
		return gjson.Result{}
	}
	return main
}

// parseGenerateResponse decodes the raw multi-line body of a generation call
// into a ModelOutput. The first two lines are framing; line index 2 holds the
// outer JSON array of parts. Parsing is pure: given the same text it always
// yields the same output, and it never touches the network.
func parseGenerateResponse(raw string, modelName string) (ModelOutput, error) {
	var empty ModelOutput

	lines := strings.Split(raw, "\n")
	if len(lines) < 3 {
		return empty, &APIError{Msg: "Failed to generate contents. Invalid response data received."}
	}
	outer := gjson.Parse(lines[2])
	if !outer.IsArray() {
		return empty, &APIError{Msg: "Failed to generate contents. Invalid response data received."}
	}
	parts := outer.Array()

	// Locate the body part: the first part whose re-parsed payload has a
	// truthy candidate container. Its index seeds the generated-image scan.
	var (
		body      gjson.Result
		bodyIndex = -1
	)
	for i, part := range parts {
		main := parsePayload(part)
		if !main.IsArray() {
			continue
		}
		if truthy(main.Get(pathBodySentinel)) {
			body = main
			bodyIndex = i
			break
		}
	}
	if bodyIndex < 0 {
		return empty, classifyRejection(outer, modelName)
	}

	// Lineage slots are positional; a non-string entry keeps its slot as ""
	// so cid/rid/rcid never shift.
	var lineage []string
	for _, v := range body.Get(pathBodyLineage).Array() {
		if v.Type == gjson.String {
			lineage = append(lineage, v.String())
		} else {
			lineage = append(lineage, "")
		}
	}

	candContainer := body.Get(pathBodyCandidates).Array()
	candidates := make([]Candidate, 0, len(candContainer))
	for ci, cand := range candContainer {
		text := cand.Get(pathCandidateText).String()
		if reCardContent.MatchString(text) {
			// Card placeholder: substitute the full answer when present.
			if alt := cand.Get(pathCandidateCardAlt); alt.Type == gjson.String && alt.Str != "" {
				text = alt.String()
			}
		}

		var thoughts *string
		if th := cand.Get(pathCandidateThoughts); th.Type == gjson.String {
			s := decodeHTML(th.String())
			thoughts = &s
		}

		var webImages []WebImage
		for _, wi := range cand.Get(pathWebImageList).Array() {
			webImages = append(webImages, WebImage{Image: Image{
				URL:   wi.Get(pathWebImageURL).String(),
				Title: wi.Get(pathWebImageTitle).String(),
				Alt:   wi.Get(pathWebImageAlt).String(),
			}})
		}

		var genImages []GeneratedImage
		if truthy(cand.Get(pathGeneratedList)) {
			var err error
			genImages, text, err = extractGeneratedImages(parts, bodyIndex, ci)
			if err != nil {
				return empty, err
			}
		}

		candidates = append(candidates, Candidate{
			RCID:            cand.Get(pathCandidateRCID).String(),
			Text:            decodeHTML(text),
			Thoughts:        thoughts,
			WebImages:       webImages,
			GeneratedImages: genImages,
		})
	}

	if len(candidates) == 0 {
		return empty, &GeminiError{Msg: "Failed to generate contents. No output data found in response."}
	}
	return ModelOutput{Lineage: lineage, Candidates: candidates, Chosen: 0}, nil
}

// extractGeneratedImages resolves the asynchronously delivered image list for
// candidate ci. Generated images arrive in a later part of the same outer
// array; scan forward from the body part, bounded by maxImageScanParts, for
// the first part whose payload carries a non-empty image marker at the same
// candidate index. Returns the image list and the candidate text with the
// placeholder marker stripped.
func extractGeneratedImages(parts []gjson.Result, bodyIndex, ci int) ([]GeneratedImage, string, error) {
	markerPath := fmt.Sprintf("%s.%d.%s", pathBodyCandidates, ci, pathGeneratedList)

	end := len(parts)
	if bounded := bodyIndex + maxImageScanParts; bounded < end {
		end = bounded
	}
	var imgBody gjson.Result
	found := false
	for pi := bodyIndex; pi < end; pi++ {
		main := parsePayload(parts[pi])
		if !main.IsArray() {
			continue
		}
		if truthy(main.Get(markerPath)) {
			imgBody = main
			found = true
			break
		}
	}
	if !found {
		return nil, "", &ImageGenerationError{APIError{Msg: "Failed to parse generated images."}}
	}

	imgCand := imgBody.Get(fmt.Sprintf("%s.%d", pathBodyCandidates, ci))
	text := strings.TrimRight(reGenContent.ReplaceAllString(imgCand.Get(pathCandidateText).String(), ""), " \t\r\n")

	list := imgCand.Get(pathGeneratedList).Array()
	images := make([]GeneratedImage, 0, len(list))
	for ii, gi := range list {
		title := "[Generated Image]"
		if seq := gi.Get(pathGeneratedSeq); seq.Type == gjson.Number && seq.Num != 0 {
			title = fmt.Sprintf("[Generated Image %.0f]", seq.Num)
		}
		alt := ""
		if alts := gi.Get(pathGeneratedAlts).Array(); len(alts) > 0 {
			if ii < len(alts) {
				alt = alts[ii].String()
			} else {
				alt = alts[0].String()
			}
		}
		images = append(images, GeneratedImage{Image: Image{
			URL:   gi.Get(pathGeneratedURL).String(),
			Title: title,
			Alt:   alt,
		}})
	}
	return images, text, nil
}

// classifyRejection maps the numeric code buried in the first part of the
// outer array onto the closed set of known rejections. Anything else is a
// generic structural failure.
func classifyRejection(outer gjson.Result, modelName string) error {
	code := outer.Get(pathErrorCode)
	if code.Type == gjson.Number {
		switch int(code.Int()) {
		case ErrorUsageLimitExceeded:
			return &UsageLimitExceeded{GeminiError{Msg: fmt.Sprintf(
				"Failed to generate contents. Usage limit of %s model has exceeded. Please try switching to another model.", modelName)}}
		case ErrorModelInconsistent, ErrorModelHeaderInvalid:
			return &ModelInvalid{GeminiError{Msg: "Failed to generate contents. The specified model is not available."}}
		case ErrorIPTemporarilyBlocked:
			return &TemporarilyBlocked{GeminiError{Msg: "Failed to generate contents. Your IP address is temporarily blocked."}}
		}
	}
	return &APIError{Msg: "Failed to generate contents. Invalid response data received."}
}
