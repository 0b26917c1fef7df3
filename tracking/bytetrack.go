package tracking

import (
	"fmt"

	"github.com/arthurkushman/go-hungarian"
	"github.com/google/uuid"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

// ByteTracker associates candidates with tracks in two stages:
// high confidence candidates first, then low confidence ones against the leftover tracks.
type ByteTracker struct {
	// Maximum number of frames a track can be missing before it is removed
	maxDisappeared int
	// Minimum IoU between predicted track box and candidate to accept a match
	minIoU float64
	// High detection confidence threshold. Only these candidates can start new tracks
	highThresh float64
	// Low detection confidence threshold. Candidates below are ignored
	lowThresh float64
	// Algorithm to use for matching
	algorithm MatchingAlgorithm
	// Time step between two frames for Kalman filter
	dt float64
	// Main storage
	Objects map[uuid.UUID]*Track
}

// DefaultByteTracker creates a ByteTracker with default parameters.
func DefaultByteTracker() *ByteTracker {
	return NewByteTracker(30, 0.2, 0.5, 0.1, MatchingAlgorithmHungarian)
}

// NewByteTracker creates a new instance of ByteTracker with specified parameters.
func NewByteTracker(maxDisappeared int, minIoU, highThresh, lowThresh float64, algorithm MatchingAlgorithm) *ByteTracker {
	return &ByteTracker{
		maxDisappeared: maxDisappeared,
		minIoU:         minIoU,
		highThresh:     highThresh,
		lowThresh:      lowThresh,
		algorithm:      algorithm,
		dt:             1.0,
		Objects:        make(map[uuid.UUID]*Track),
	}
}

// bboxPair is a helper struct to pair track ID with its bounding box.
type bboxPair struct {
	ID   uuid.UUID
	BBox Rectangle
}

// MatchObjects matches candidates of the current frame with existing tracks.
// Returned slice is parallel to candidates: the key of the track each candidate was bound to,
// or uuid.Nil for candidates which neither matched nor started a track.
func (bt *ByteTracker) MatchObjects(candidates []Candidate) ([]uuid.UUID, error) {
	assigned := make([]uuid.UUID, len(candidates))
	boxes := make([]Rectangle, len(candidates))
	for i := range candidates {
		boxes[i] = NewRectFrom(candidates[i].Box)
	}

	for _, track := range bt.Objects {
		track.PredictNextPosition()
	}

	activeTrackIDs := make([]uuid.UUID, 0, len(bt.Objects))
	activeTrackBBoxes := make([]bboxPair, 0, len(bt.Objects))
	for id, track := range bt.Objects {
		if track.GetNoMatchTimes() < bt.maxDisappeared {
			activeTrackIDs = append(activeTrackIDs, id)
			activeTrackBBoxes = append(activeTrackBBoxes, bboxPair{ID: id, BBox: track.GetPredictedBBox()})
		}
	}

	matchedTracks := make(map[uuid.UUID]struct{})

	// 1. First stage: high confidence candidates against all active tracks
	highIndices := make([]int, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Confidence >= bt.highThresh {
			highIndices = append(highIndices, i)
		}
	}
	if len(activeTrackBBoxes) > 0 && len(highIndices) > 0 {
		iouMatrix := createIoUMatrix(activeTrackBBoxes, highIndices, boxes)
		matches := bt.performMatching(iouMatrix, len(activeTrackBBoxes), len(highIndices))
		err := bt.processMatches(matches, activeTrackBBoxes, highIndices, iouMatrix, boxes, matchedTracks, assigned)
		if err != nil {
			return nil, fmt.Errorf("error processing matches in stage 1: %w", err)
		}
	}

	// 2. Second stage: low confidence candidates against remaining tracks
	unmatchedTrackBBoxes := make([]bboxPair, 0)
	for _, id := range activeTrackIDs {
		if _, found := matchedTracks[id]; !found {
			unmatchedTrackBBoxes = append(unmatchedTrackBBoxes, bboxPair{ID: id, BBox: bt.Objects[id].GetPredictedBBox()})
		}
	}
	lowIndices := make([]int, 0)
	for i := range candidates {
		conf := candidates[i].Confidence
		if assigned[i] == uuid.Nil && conf < bt.highThresh && conf >= bt.lowThresh {
			lowIndices = append(lowIndices, i)
		}
	}
	if len(unmatchedTrackBBoxes) > 0 && len(lowIndices) > 0 {
		iouMatrix := createIoUMatrix(unmatchedTrackBBoxes, lowIndices, boxes)
		matches := bt.performMatching(iouMatrix, len(unmatchedTrackBBoxes), len(lowIndices))
		err := bt.processMatches(matches, unmatchedTrackBBoxes, lowIndices, iouMatrix, boxes, matchedTracks, assigned)
		if err != nil {
			return nil, fmt.Errorf("error processing matches in stage 2: %w", err)
		}
	}

	// 3. Unmatched high confidence candidates start new tracks
	for _, idx := range highIndices {
		if assigned[idx] != uuid.Nil {
			continue
		}
		track := NewTrack(boxes[idx], bt.dt)
		bt.Objects[track.GetID()] = track
		assigned[idx] = track.GetID()
		matchedTracks[track.GetID()] = struct{}{}
	}

	// 4. Age unmatched tracks and drop the ones gone for too long
	for id, track := range bt.Objects {
		if _, found := matchedTracks[id]; found {
			continue
		}
		track.IncNoMatch()
		if track.GetNoMatchTimes() >= bt.maxDisappeared {
			delete(bt.Objects, id)
		}
	}
	return assigned, nil
}

// Reset drops every track
func (bt *ByteTracker) Reset() {
	bt.Objects = make(map[uuid.UUID]*Track)
}

// createIoUMatrix builds IoU matrix: rows = tracks, columns = candidates selected by indices
func createIoUMatrix(trackBBoxes []bboxPair, indices []int, boxes []Rectangle) [][]float64 {
	iouMatrix := make([][]float64, len(trackBBoxes))
	for i, trkBox := range trackBBoxes {
		row := make([]float64, len(indices))
		for j, idx := range indices {
			row[j] = IoU(trkBox.BBox, boxes[idx])
		}
		iouMatrix[i] = row
	}
	return iouMatrix
}

// performMatching returns pairs of {trackIndex, candidateIndex} local to the current stage
func (bt *ByteTracker) performMatching(iouMatrix [][]float64, numTracks, numCandidates int) [][2]int {
	if numTracks == 0 || numCandidates == 0 {
		return [][2]int{}
	}
	if bt.algorithm == MatchingAlgorithmGreedy {
		return bt.performGreedyMatching(iouMatrix, numTracks, numCandidates)
	}

	// Hungarian solver needs square matrix: pad with zero IoU
	paddedMatrix := iouMatrix
	if numTracks != numCandidates {
		paddedSize := max(numTracks, numCandidates)
		paddedMatrix = make([][]float64, paddedSize)
		for i := 0; i < paddedSize; i++ {
			paddedMatrix[i] = make([]float64, paddedSize)
			if i < numTracks {
				copy(paddedMatrix[i], iouMatrix[i])
			}
		}
	}
	assignments := hungarian.SolveMax(paddedMatrix)
	matches := make([][2]int, 0, len(assignments))
	for trackIdx, row := range assignments {
		for candIdx := range row {
			// Padding rows and columns are dummies
			if trackIdx < numTracks && candIdx < numCandidates {
				matches = append(matches, [2]int{trackIdx, candIdx})
			}
			break
		}
	}
	return matches
}

// performGreedyMatching picks best free candidate for each track in order
func (bt *ByteTracker) performGreedyMatching(iouMatrix [][]float64, numTracks, numCandidates int) [][2]int {
	matches := make([][2]int, 0)
	taken := make(map[int]struct{})
	for i := 0; i < numTracks; i++ {
		bestIoU := -1.0
		bestIdx := -1
		for j := 0; j < numCandidates; j++ {
			if _, found := taken[j]; found {
				continue
			}
			if iouMatrix[i][j] > bestIoU && iouMatrix[i][j] >= bt.minIoU {
				bestIoU = iouMatrix[i][j]
				bestIdx = j
			}
		}
		if bestIdx != -1 {
			matches = append(matches, [2]int{i, bestIdx})
			taken[bestIdx] = struct{}{}
		}
	}
	return matches
}

// processMatches updates matched tracks and records assignments for candidates
func (bt *ByteTracker) processMatches(
	matches [][2]int,
	trackBBoxes []bboxPair,
	indices []int,
	iouMatrix [][]float64,
	boxes []Rectangle,
	matchedTracks map[uuid.UUID]struct{},
	assigned []uuid.UUID,
) error {
	for _, match := range matches {
		if iouMatrix[match[0]][match[1]] < bt.minIoU {
			continue
		}
		trackID := trackBBoxes[match[0]].ID
		idx := indices[match[1]]
		track, ok := bt.Objects[trackID]
		if !ok {
			continue
		}
		if err := track.Update(boxes[idx]); err != nil {
			return fmt.Errorf("failed to update track %s: %w", trackID, err)
		}
		matchedTracks[trackID] = struct{}{}
		assigned[idx] = trackID
	}
	return nil
}
