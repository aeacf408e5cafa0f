package policy

// commonPasswords is the built-in dictionary of frequently breached
// passwords. Matching is case-insensitive and applied both to the raw
// lowercase candidate and its leet-normalized form, so "P@ssw0rd" and
// "passw0rd" hit the "password" entry alike.
var commonPasswords = []string{
	"password", "passwort", "passw0rd", "password1", "password123",
	"123456", "1234567", "12345678", "123456789", "1234567890",
	"qwerty", "qwerty123", "qwertyuiop", "azerty", "asdfgh",
	"abc123", "abcd1234", "letmein", "welcome", "welcome1",
	"admin", "administrator", "root", "toor", "user",
	"login", "master", "monkey", "dragon", "shadow",
	"sunshine", "princess", "football", "baseball", "soccer",
	"superman", "batman", "starwars", "pokemon", "naruto",
	"iloveyou", "lovely", "whatever", "trustno1", "freedom",
	"secret", "summer", "winter", "spring", "autumn",
	"hello", "hello123", "charlie", "jordan", "michael",
	"jennifer", "michelle", "daniel", "ashley", "jessica",
	"hunter", "killer", "ninja", "mustang", "access",
	"flower", "cookie", "pepper", "ginger", "banana",
	"chocolate", "computer", "internet", "samsung", "google",
	"cheese", "purple", "orange", "yellow", "silver",
	"golden", "diamond", "phoenix", "tigger", "buster",
	"matrix", "united", "liverpool", "chelsea", "arsenal",
	"password!", "p@ssword", "pa$$word", "passwd", "pass123",
	"test123", "temp123", "changeme", "default", "guest",
}
