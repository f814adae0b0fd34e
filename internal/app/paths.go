package app

import "chronotech-quiz-service/internal/docstore"

const (
	usersCollection    = "users"
	missionsCollection = "daily_missions"
	quizzesCollection  = "quizzes"
	commentsCollection = "comments"
)

func userPath(uid string) string { return docstore.Join(usersCollection, uid) }

func historyCollection(uid string) string {
	return docstore.Join(usersCollection, uid, "scoreHistory")
}

func historyPath(uid, entryID string) string {
	return docstore.Join(historyCollection(uid), entryID)
}

func missionPath(dayKey string) string { return docstore.Join(missionsCollection, dayKey) }

func progressPath(uid, missionID string) string {
	return docstore.Join(usersCollection, uid, "mission_progress", missionID)
}

func unlockedCollection(uid string) string {
	return docstore.Join(usersCollection, uid, "unlockedAchievements")
}

func unlockedPath(uid, achievementID string) string {
	return docstore.Join(unlockedCollection(uid), achievementID)
}

func quizPath(quizID string) string { return docstore.Join(quizzesCollection, quizID) }

func commentPath(commentID string) string { return docstore.Join(commentsCollection, commentID) }

func repliesCollection(commentID string) string {
	return docstore.Join(commentsCollection, commentID, "replies")
}

func replyPath(commentID, replyID string) string {
	return docstore.Join(repliesCollection(commentID), replyID)
}
