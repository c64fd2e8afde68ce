package skills

// Movie is an entry of the built-in dialogue table.
type Movie struct {
	Aliases   []string
	Title     string
	Dialogues []string
}

// builtinMovies is checked in order; the first alias or title contained in the
// query wins.
var builtinMovies = []Movie{
	{
		Aliases: []string{"sholay"},
		Title:   "Sholay",
		Dialogues: []string{
			"Kitne aadmi the?",
			"Yeh haath mujhe de de Thakur!",
			"Jab tak humare paas maa hai, hum kisi se nahi darenge",
			"Bahut yaad aaye tumhari",
		},
	},
	{
		Aliases: []string{"don"},
		Title:   "Don",
		Dialogues: []string{
			"Don ko pakadna mushkil hi nahi, namumkin hai",
			"Don ka intezaar toh baarah mulkon ki police kar rahi hai",
			"Main hoon Don!",
		},
	},
	{
		Aliases: []string{"dabangg"},
		Title:   "Dabangg",
		Dialogues: []string{
			"Hum yahan ke Robin Hood hain, Robin Hood Pandey",
			"Thappad se darr nahi lagta saheb, pyaar se lagta hai",
			"Swagat nahi karoge humara?",
		},
	},
	{
		Aliases: []string{"golmaal"},
		Title:   "Golmaal",
		Dialogues: []string{
			"Dekh bhai, dekh kya raha hai?",
			"Are bhai bhai bhai!",
			"Confusion ki dukaan hai ye",
		},
	},
	{
		Aliases: []string{"munna bhai"},
		Title:   "Munna Bhai MBBS",
		Dialogues: []string{
			"Get well soon, bole toh jaldi theek ho ja",
			"Jadoo ki jhappi!",
			"Bhai, tension lene ka nahi, sirf dene ka",
		},
	},
	{
		Aliases: []string{"3 idiots"},
		Title:   "3 Idiots",
		Dialogues: []string{
			"All izz well!",
			"Kamyaabi ke peeche mat bhaago, kaamyaabi tumhare peeche aayegi",
			"Life mein jab bhi koi mushkil aaye, kehna - All izz well",
		},
	},
}

// BuiltinMovies returns a copy of the built-in table.
func BuiltinMovies() []Movie {
	out := make([]Movie, len(builtinMovies))
	copy(out, builtinMovies)
	return out
}
