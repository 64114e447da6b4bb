package dataset

var CopyRows = copyRows
