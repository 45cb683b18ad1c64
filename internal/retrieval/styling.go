package retrieval

// StylingRules is the chart styling corpus seeded into every session's style
// index. The visualization step retrieves the rule closest to the query.
var StylingRules = []string{
	`Dont ignore any of these instructions.
For a line chart always use plotly_white template, reduce x axes & y axes line to 0.2 & x & y grid width to 1.
Always give a title and make bold using html tag axis label and try to use multiple colors if more than one line
Annotate the min and max of the line
Display numbers in thousand(K) or Million(M) if larger than 1000/100000
Show percentages in 2 decimal points with '%' sign
Default size of chart should be height =1200 and width =1000`,

	`Dont ignore any of these instructions.
For a bar chart always use plotly_white template, reduce x axes & y axes line to 0.2 & x & y grid width to 1.
Always give a title and make bold using html tag axis label
Always display numbers in thousand(K) or Million(M) if larger than 1000/100000.
Annotate the values of the bar chart
If variable is a percentage show in 2 decimal points with '%' sign.
Default size of chart should be height =1200 and width =1000`,

	`For a histogram chart choose a bin_size of 50
Do not ignore any of these instructions
always use plotly_white template, reduce x & y axes line to 0.2 & x & y grid width to 1.
Always give a title and make bold using html tag axis label
Always display numbers in thousand(K) or Million(M) if larger than 1000/100000. Add annotations x values
If variable is a percentage show in 2 decimal points with '%'
Default size of chart should be height =1200 and width =1000`,

	`For a pie chart only show top 10 categories, bundle rest as others
Do not ignore any of these instructions
always use plotly_white template, reduce x & y axes line to 0.2 & x & y grid width to 1.
Always give a title and make bold using html tag axis label
Always display numbers in thousand(K) or Million(M) if larger than 1000/100000. Add annotations x values
If variable is a percentage show in 2 decimal points with '%'
Default size of chart should be height =1200 and width =1000`,

	`Do not ignore any of these instructions
always use plotly_white template, reduce x & y axes line to 0.2 & x & y grid width to 1.
Always give a title and make bold using html tag axis label
Always display numbers in thousand(K) or Million(M) if larger than 1000/100000. Add annotations x values
Dont add K/M if number already in , or value is not a number
If variable is a percentage show in 2 decimal points with '%'
Default size of chart should be height =1200 and width =1000`,

	`For a heat map
Use the 'plotly_white' template for a clean, white background.
Set a chart title
Style the X-axis with a black line color, 0.2 line width, 1 grid width, format 1000/1000000 as K/M
Do not format non-numerical numbers
Style the Y-axis with a black line color, 0.2 line width, 1 grid width, format 1000/1000000 as K/M
Do not format non-numerical numbers
Set the figure dimensions to a height of 1200 pixels and a width of 1000 pixels.`,

	`For a Histogram, used for returns/distribution plotting
Use the 'plotly_white' template for a clean, white background.
Set a chart title
Style the X-axis with 1 grid width, format 1000/1000000 as K/M
Do not format non-numerical numbers
Style the Y-axis with 1 grid width, format 1000/1000000 as K/M
Do not format non-numerical numbers
Use an opacity of 0.75
Set the figure dimensions to a height of 1200 pixels and a width of 1000 pixels.`,
}
