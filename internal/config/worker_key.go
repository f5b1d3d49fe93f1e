package config

type WorkerKeyStruct struct {
	PersistAnswersQueue  string
	PersistExamLogsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:  "persist_answers_queue",
	PersistExamLogsQueue: "persist_exam_logs_queue",
}
