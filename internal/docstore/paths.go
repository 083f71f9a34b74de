package docstore

// Collection layout shared with the gallery's other clients.

func Galleries() Path { return "galleries" }

func Gallery(galleryID string) Path { return Join("galleries", galleryID) }

func Collections(galleryID string) Path { return Join("galleries", galleryID, "collections") }

func Collection(galleryID, collectionID string) Path {
	return Collections(galleryID).Child(collectionID)
}

func Artists(galleryID string) Path { return Join("galleries", galleryID, "artists") }

func Pieces(galleryID string) Path { return Join("galleries", galleryID, "pieces") }

func Users(galleryID string) Path { return Join("galleries", galleryID, "users") }

func UserSessions(galleryID string) Path { return Join("galleries", galleryID, "userSessions") }

func UserSession(galleryID, sessionID string) Path {
	return UserSessions(galleryID).Child(sessionID)
}

func UserPieceInteractions(galleryID string) Path {
	return Join("galleries", galleryID, "userPieceInteractions")
}

// UserPieceInteraction is keyed by user and piece so every visitor has one
// aggregate per piece.
func UserPieceInteraction(galleryID, userID, pieceID string) Path {
	return UserPieceInteractions(galleryID).Child(userID + "_" + pieceID)
}

func ViewingEvents() Path { return "viewing_events" }

func ViewingEvent(eventID string) Path { return ViewingEvents().Child(eventID) }

func PieceStatsCollection() Path { return "pieceStats" }

func PieceStats(pieceID string) Path { return PieceStatsCollection().Child(pieceID) }

func FavoritePieces(userID string) Path { return Join("favorites", userID, "pieces") }

func FavoritePiece(userID, pieceID string) Path { return FavoritePieces(userID).Child(pieceID) }
