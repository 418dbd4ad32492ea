package prompt

// Themes seeds each request so consecutive prompts wander across topics.
var Themes = []string{
	"friendship",
	"adventure",
	"mystery",
	"discovery",
	"kindness",
	"growth",
	"courage",
	"perseverance",
	"dreams",
	"imagination",
	"nature",
	"technology",
	"space exploration",
	"magic",
	"science",
	"time travel",
	"justice",
	"betrayal",
	"redemption",
	"curiosity",
	"harmony",
	"family",
	"art",
	"creativity",
	"healing",
	"resilience",
	"freedom",
	"truth",
	"hope",
	"wisdom",
}
