package lexicon

func defaultWords() map[string]float64 {
	return map[string]float64{
		// positive
		"good": 0.7, "great": 0.8, "excellent": 0.9, "amazing": 0.9, "wonderful": 0.8,
		"fantastic": 0.9, "awesome": 0.8, "brilliant": 0.8, "perfect": 0.9, "outstanding": 0.9,
		"love": 0.8, "like": 0.6, "enjoy": 0.7, "happy": 0.8, "pleased": 0.7,
		"satisfied": 0.7, "delighted": 0.8, "thrilled": 0.9, "excited": 0.8, "positive": 0.7,
		"thank": 0.5, "thanks": 0.6, "appreciate": 0.7, "helpful": 0.7, "glad": 0.7,
		"nice": 0.6, "resolved": 0.6, "welcome": 0.5, "easy": 0.5, "quick": 0.4,

		// negative
		"bad": -0.7, "terrible": -0.8, "awful": -0.9, "horrible": -0.9, "disgusting": -0.8,
		"hate": -0.8, "dislike": -0.6, "angry": -0.8, "mad": -0.7, "furious": -0.9,
		"sad": -0.7, "upset": -0.7, "disappointed": -0.7, "frustrated": -0.7, "annoyed": -0.6,
		"failure": -0.8, "wrong": -0.6, "problem": -0.6, "issue": -0.5, "worst": -0.9,
		"unacceptable": -0.8, "ridiculous": -0.7, "stolen": -0.6, "fraud": -0.7, "lost": -0.5,
		"broken": -0.6, "useless": -0.8, "slow": -0.4, "complaint": -0.5, "error": -0.5,
	}
}

func defaultIntensifiers() map[string]float64 {
	return map[string]float64{
		"very": 1.3, "extremely": 1.5, "really": 1.2, "quite": 1.1, "rather": 1.1,
		"absolutely": 1.4, "completely": 1.4, "totally": 1.4, "incredibly": 1.5,
		"so": 1.2, "too": 1.1, "particularly": 1.2,
	}
}

// negators flip and scale the next sentiment word
func defaultNegators() map[string]float64 {
	return map[string]float64{
		"not": 1.0, "no": 1.0, "never": 1.0, "nothing": 1.0, "nobody": 1.0,
		"nowhere": 1.0, "neither": 1.0, "nor": 1.0, "without": 0.8, "lack": 0.8,
		"barely": 0.7, "hardly": 0.7, "scarcely": 0.7,
	}
}
